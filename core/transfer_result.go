package core

import (
	"encoding/json"
	"sort"
)

// TransferStatus is the overall outcome of a multi-object operation.
type TransferStatus int

const (
	TransferComplete TransferStatus = iota
	TransferPartial
	TransferFailed
)

func (s TransferStatus) String() string {
	switch s {
	case TransferComplete:
		return "complete"
	case TransferPartial:
		return "partial"
	default:
		return "failed"
	}
}

// MarshalJSON renders the status by name.
func (s TransferStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// TransferResult itemizes a batch operation. Keys are rooted paths; directory
// markers keep their trailing separator. Pending lists keys that were never
// attempted because the operation was cancelled.
type TransferResult struct {
	Succeeded []string
	Failed    map[string]error
	Pending   []string
	Status    TransferStatus
}

func newTransferResult() *TransferResult {
	return &TransferResult{
		Succeeded: []string{},
		Failed:    make(map[string]error),
		Pending:   []string{},
	}
}

// settle computes Status from the itemized outcome.
func (r *TransferResult) settle() {
	switch {
	case len(r.Failed) == 0 && len(r.Pending) == 0:
		r.Status = TransferComplete
	case len(r.Succeeded) == 0:
		r.Status = TransferFailed
	default:
		r.Status = TransferPartial
	}
}

// FailedKeys returns the failed keys in lexical order.
func (r *TransferResult) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders failures as error strings.
func (r *TransferResult) MarshalJSON() ([]byte, error) {
	failed := make(map[string]string, len(r.Failed))
	for k, err := range r.Failed {
		failed[k] = err.Error()
	}
	return json.Marshal(struct {
		Status    TransferStatus    `json:"status"`
		Succeeded []string          `json:"succeeded"`
		Failed    map[string]string `json:"failed"`
		Pending   []string          `json:"pending"`
	}{r.Status, r.Succeeded, failed, r.Pending})
}
