// Package dispatcher implements the database-resident queue fanout: a
// periodic pass that claims rows sitting at a stage's ready state, marks
// them processing, and publishes them on the channel their worker pool
// reads from. It is the single writer that moves entities out of "ready".
package dispatcher

import (
	"log"
	"sync"
	"time"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/worker"
)

// torrentKey and packageFileKey identify a registered consumer by the
// (ready, processing) stage pair it was registered with. Two workers
// registering the same pair share one channel and one refcount, mirroring
// the original's identity-by-(ready_stage, processing_stage) consumers.
type torrentKey struct{ ready, processing string }
type packageFileKey struct{ ready, processing string }

type torrentConsumer struct {
	key      torrentKey
	channel  chan *db.Torrent
	refcount int
}

type packageFileConsumer struct {
	key      packageFileKey
	channel  chan *db.PackageFile
	refcount int
}

// Dispatcher owns the consumer registry and runs the periodic fanout tick.
// Registration order is preserved and is significant: torrent consumers
// are always fanned out before package-file consumers within one tick.
type Dispatcher struct {
	db       *db.DB
	interval time.Duration
	registry *worker.Registry

	mu                sync.Mutex
	torrentOrder      []torrentKey
	torrentConsumers  map[torrentKey]*torrentConsumer
	pfOrder           []packageFileKey
	pfConsumers       map[packageFileKey]*packageFileConsumer

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a dispatcher ticking every interval (default 5s per the
// worker-runtime contract).
func New(database *db.DB, interval time.Duration, registry *worker.Registry) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		db:               database,
		interval:         interval,
		registry:         registry,
		torrentConsumers: make(map[torrentKey]*torrentConsumer),
		pfConsumers:      make(map[packageFileKey]*packageFileConsumer),
		stopCh:           make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// RegisterTorrentConsumer returns the channel a torrent worker pool should
// read from for the given (ready, processing) stage pair. Idempotent: a
// second registration with the same pair returns the same channel and
// bumps the refcount (so shutdown knows how many sentinels to push).
func (d *Dispatcher) RegisterTorrentConsumer(ready, processing string) <-chan *db.Torrent {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := torrentKey{ready, processing}
	c, ok := d.torrentConsumers[key]
	if !ok {
		c = &torrentConsumer{key: key, channel: make(chan *db.Torrent, 64)}
		d.torrentConsumers[key] = c
		d.torrentOrder = append(d.torrentOrder, key)
	}
	c.refcount++
	return c.channel
}

// RegisterPackageFileConsumer is the package-file analogue of
// RegisterTorrentConsumer.
func (d *Dispatcher) RegisterPackageFileConsumer(ready, processing string) <-chan *db.PackageFile {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := packageFileKey{ready, processing}
	c, ok := d.pfConsumers[key]
	if !ok {
		c = &packageFileConsumer{key: key, channel: make(chan *db.PackageFile, 64)}
		d.pfConsumers[key] = c
		d.pfOrder = append(d.pfOrder, key)
	}
	c.refcount++
	return c.channel
}

// Run blocks, running RunOneTime once and then ticking the fanout every
// interval until Stop is called.
func (d *Dispatcher) Run() {
	d.registry.RunOneTime()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.done)

	for {
		select {
		case <-d.stopCh:
			d.drainAndPublishSentinels()
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick performs one fanout pass: torrent consumers first, in registration
// order, then package-file consumers, in registration order.
func (d *Dispatcher) tick() {
	d.registry.RunPeriodic()

	d.mu.Lock()
	torrentOrder := append([]torrentKey(nil), d.torrentOrder...)
	pfOrder := append([]packageFileKey(nil), d.pfOrder...)
	d.mu.Unlock()

	for _, key := range torrentOrder {
		d.fanoutTorrents(key)
	}
	for _, key := range pfOrder {
		d.fanoutPackageFiles(key)
	}
}

func (d *Dispatcher) fanoutTorrents(key torrentKey) {
	claimed, err := d.db.ClaimTorrentsForProcessing(key.ready, key.processing)
	if err != nil {
		log.Printf("[dispatcher] claim torrents %s->%s: %v", key.ready, key.processing, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	d.mu.Lock()
	c := d.torrentConsumers[key]
	d.mu.Unlock()
	if c == nil {
		return
	}

	for _, t := range claimed {
		c.channel <- t
	}
}

func (d *Dispatcher) fanoutPackageFiles(key packageFileKey) {
	claimed, err := d.db.ClaimPackageFilesForProcessing(key.ready, key.processing)
	if err != nil {
		log.Printf("[dispatcher] claim package files %s->%s: %v", key.ready, key.processing, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	d.mu.Lock()
	c := d.pfConsumers[key]
	d.mu.Unlock()
	if c == nil {
		return
	}

	for _, pf := range claimed {
		c.channel <- pf
	}
}

// Stop signals the run loop to exit after pushing one sentinel (nil) per
// registered refcount onto every channel, waking every blocked worker
// exactly once, then waits for the run loop to acknowledge.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.done
}

func (d *Dispatcher) drainAndPublishSentinels() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, key := range d.torrentOrder {
		c := d.torrentConsumers[key]
		for i := 0; i < c.refcount; i++ {
			c.channel <- nil
		}
	}
	for _, key := range d.pfOrder {
		c := d.pfConsumers[key]
		for i := 0; i < c.refcount; i++ {
			c.channel <- nil
		}
	}
}
