package producerapi

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/arlowood/torrentship/internal/archive"
	"github.com/arlowood/torrentship/internal/packaging"
)

// chunkSpec is the wire shape of one emitted package file, matching the
// triple the consumer's packager/lister expect rather than the legacy
// plain-name-list revision mentioned as an open question.
type chunkSpec struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	SHA256   string `json:"sha256"`
}

func chunkSpecs(chunks []archive.Chunk) []chunkSpec {
	specs := make([]chunkSpec, len(chunks))
	for i, c := range chunks {
		specs[i] = chunkSpec{Filename: c.Filename, Filesize: c.Filesize, SHA256: c.SHA256}
	}
	return specs
}

// handleCompletedTorrents lists the names of torrents the directory
// monitor has discovered but not yet packaged (Torrent rows at the
// "Added" sentinel stage). It is the endpoint CompletedTorrentMonitor
// polls.
func (s *Server) handleCompletedTorrents(w http.ResponseWriter, r *http.Request) {
	torrents, err := s.database.GetTorrentsByStage("Added")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list completed torrents", err.Error())
		return
	}

	names := make([]string, 0, len(torrents))
	for _, t := range torrents {
		names = append(names, t.Name)
	}
	respondJSON(w, http.StatusOK, names)
}

type torrentRequest struct {
	Torrent string `json:"torrent"`
}

// handleTorrents serves three shapes depending on method and whether a
// body is present: GET with no body lists packaged-torrent names, GET
// with a {torrent} body returns that torrent's chunk listing, and POST
// with a {torrent} body triggers synchronous packaging.
func (s *Server) handleTorrents(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handlePackageTorrent(w, r)
		return
	}

	if r.ContentLength == 0 {
		s.handleListPackagedTorrents(w, r)
		return
	}
	s.handleGetTorrentChunks(w, r)
}

func (s *Server) handleListPackagedTorrents(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Names()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list packaged torrents", err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetTorrentChunks(w http.ResponseWriter, r *http.Request) {
	var req torrentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed request", err.Error())
		return
	}

	chunks, err := s.engine.Manifest(req.Torrent)
	if err != nil {
		if _, ok := err.(*packaging.ErrTorrentNotFound); ok {
			respondError(w, http.StatusNotFound, "Torrent not found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to read manifest", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chunkSpecs(chunks))
}

func (s *Server) handlePackageTorrent(w http.ResponseWriter, r *http.Request) {
	var req torrentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed request", err.Error())
		return
	}

	chunks, err := s.engine.Package(req.Torrent)
	if err != nil {
		if _, ok := err.(*packaging.ErrTorrentNotFound); ok {
			respondError(w, http.StatusNotFound, "Torrent not found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Packaging failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chunkSpecs(chunks))
}

// handleDownload serves (GET, with Range) or removes (DELETE) one chunk
// file. filename is the literal chunk name, e.g. "File1.tar.0000"; the
// torrent it belongs to is its name stripped of the ".tar.NNNN" suffix.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	torrentName := torrentNameFromChunk(filename)
	path := s.engine.ChunkPath(torrentName, filename)

	switch r.Method {
	case http.MethodGet:
		s.serveChunkRange(w, r, path)
	case http.MethodDelete:
		s.deleteChunk(w, path)
	}
}

// torrentNameFromChunk strips a chunk filename's ".tar.NNNN" suffix to
// recover the torrent name its directory is keyed on.
func torrentNameFromChunk(filename string) string {
	if idx := strings.LastIndex(filename, ".tar."); idx >= 0 {
		return filename[:idx]
	}
	return filename
}

func (s *Server) serveChunkRange(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		respondError(w, http.StatusNotFound, "Chunk not found", path)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to open chunk", err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to stat chunk", err.Error())
		return
	}

	start, stop, err := parseRange(r.Header.Get("Range"), info.Size())
	if err != nil {
		respondError(w, http.StatusBadRequest, "Malformed Range header", err.Error())
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to seek chunk", err.Error())
		return
	}

	length := stop - start + 1
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(stop, 10)+"/"+strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusPartialContent)
	io.CopyN(w, f, length)
}

// parseRange understands the two forms this pipeline's client ever sends:
// "bytes=a-" and "bytes=a-b". A header without the "bytes=" prefix
// (including no header at all) selects the whole file; after the prefix,
// anything else is rejected rather than guessed at.
func parseRange(header string, size int64) (start, stop int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, size - 1, nil
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, &rangeParseError{header: header}
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, &rangeParseError{header: header}
	}

	if parts[1] == "" {
		return start, size - 1, nil
	}
	stop, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, &rangeParseError{header: header}
	}
	return start, stop, nil
}

type rangeParseError struct{ header string }

func (e *rangeParseError) Error() string { return "unparseable Range header: " + e.header }

func (s *Server) deleteChunk(w http.ResponseWriter, path string) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			respondError(w, http.StatusNotFound, "Chunk not found", path)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to delete chunk", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
