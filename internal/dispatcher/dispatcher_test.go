package dispatcher

import (
	"testing"
	"time"

	"github.com/arlowood/torrentship/internal/worker"
)

func TestRegisterTorrentConsumerIsIdempotentByStagePair(t *testing.T) {
	d := New(nil, time.Second, &worker.Registry{})

	ch1 := d.RegisterTorrentConsumer("Packaged", "Listing")
	ch2 := d.RegisterTorrentConsumer("Packaged", "Listing")
	if ch1 != ch2 {
		t.Fatal("expected the same channel for repeated registration of the same stage pair")
	}

	d.mu.Lock()
	refcount := d.torrentConsumers[torrentKey{"Packaged", "Listing"}].refcount
	d.mu.Unlock()
	if refcount != 2 {
		t.Fatalf("expected refcount 2 after two registrations, got %d", refcount)
	}
}

func TestStopPublishesOneSentinelPerRegisteredConsumer(t *testing.T) {
	d := New(nil, time.Second, &worker.Registry{})

	ch := d.RegisterTorrentConsumer("Packaged", "Listing")
	d.RegisterTorrentConsumer("Packaged", "Listing") // refcount 2

	d.drainAndPublishSentinels()

	for i := 0; i < 2; i++ {
		select {
		case v := <-ch:
			if v != nil {
				t.Fatalf("expected nil sentinel, got %v", v)
			}
		default:
			t.Fatalf("expected sentinel %d to be immediately available", i)
		}
	}
}
