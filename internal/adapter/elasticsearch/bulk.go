package elasticsearch

import "fmt"

// BulkSummary counts the outcome of one bulk request.
type BulkSummary struct {
	Indexed int
	Failed  int
	Errors  []BulkItemError
}

// BulkItemError is one rejected feature.
type BulkItemError struct {
	ID     string
	Status int
	Type   string
	Reason string
}

func (e BulkItemError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.ID, e.Status, e.Type, e.Reason)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (r bulkResponse) summary() BulkSummary {
	var s BulkSummary
	for _, item := range r.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < 300 {
				s.Indexed++
				continue
			}
			s.Failed++
			itemErr := BulkItemError{ID: result.ID, Status: result.Status}
			if result.Error != nil {
				itemErr.Type = result.Error.Type
				itemErr.Reason = result.Error.Reason
			}
			s.Errors = append(s.Errors, itemErr)
		}
	}
	return s
}
