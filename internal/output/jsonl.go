package output

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/selimozcann/redirectvalidator/internal/model"
)

// Record represents one line in the JSONL report.
type Record struct {
	Timestamp         string      `json:"timestamp"`
	Target            string      `json:"target"`
	Template          string      `json:"template"`
	Payload           string      `json:"payload"`
	Origin            string      `json:"origin"`
	Destination       string      `json:"destination"`
	DestinationDomain string      `json:"destination_domain,omitempty"`
	FinalURL          string      `json:"final_url"`
	RedirectChain     []string    `json:"redirect_chain"`
	Hops              []model.Hop `json:"hops"`
	Tags              []string    `json:"tags,omitempty"`
}

// BuildRecord converts a finding into a Record for JSONL output.
func BuildRecord(f model.Finding) Record {
	return Record{
		Timestamp:         f.FoundAt.UTC().Format(time.RFC3339),
		Target:            f.Target,
		Template:          f.Template,
		Payload:           f.Payload,
		Origin:            f.Origin,
		Destination:       f.Destination,
		DestinationDomain: f.DestinationDomain,
		FinalURL:          f.FinalURL,
		RedirectChain:     f.Locations(),
		Hops:              append([]model.Hop(nil), f.Chain...),
		Tags:              append([]string(nil), f.Tags...),
	}
}

// JSONLWriter writes one finding per line as JSON.
type JSONLWriter struct {
	w  *bufio.Writer
	mu sync.Mutex
}

// NewJSONLWriter wraps an io.Writer with buffering.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

// Write writes a single finding as a JSON line and flushes it, so the file
// stays usable if the scan is interrupted.
func (j *JSONLWriter) Write(f model.Finding) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	enc := json.NewEncoder(j.w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(BuildRecord(f)); err != nil {
		return err
	}
	return j.w.Flush()
}

// Flush flushes the underlying buffer.
func (j *JSONLWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// Close flushes the buffer; keep the signature similar to io.Closer.
func (j *JSONLWriter) Close() error {
	return j.Flush()
}
