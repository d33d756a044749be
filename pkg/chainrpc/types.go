package chainrpc

import "encoding/json"

// TableRowsRequest mirrors the ledger's get_table_rows query parameters.
type TableRowsRequest struct {
	Code          string `json:"code"`
	Scope         string `json:"scope"`
	Table         string `json:"table"`
	LowerBound    string `json:"lower_bound,omitempty"`
	UpperBound    string `json:"upper_bound,omitempty"`
	KeyType       string `json:"key_type,omitempty"`
	EncodeType    string `json:"encode_type,omitempty"`
	IndexPosition int    `json:"index_position,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	JSON          bool   `json:"json"`
}

// TableRowsResponse is a single page of rows plus the ledger's "more" flag.
type TableRowsResponse struct {
	Rows []json.RawMessage `json:"rows"`
	More bool              `json:"more"`
}

// AccountInfo is the subset of get_account consumed by collaborators.
type AccountInfo struct {
	AccountName string `json:"account_name"`
	Created     string `json:"created"`
}
