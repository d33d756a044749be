package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// cursorRow probes a raw row for the ever-increasing primary id used as
// the pagination cursor.
type cursorRow struct {
	ID *uint64 `json:"id"`
}

// FetchAll exhaustively retrieves every row of a table by following the
// ledger's "more" flag, advancing the lower bound to last row id + 1.
// The loop stops when the ledger reports no more rows or a page comes
// back empty, so a lying "more" flag cannot spin it forever. Transient
// failures propagate to the caller unretried.
func FetchAll[T any](ctx context.Context, c TableReader, req TableRowsRequest) ([]T, error) {
	var out []T
	for {
		resp, err := c.GetTableRows(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Rows {
			var row T
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, fmt.Errorf("decode %s row: %w", req.Table, err)
			}
			out = append(out, row)
		}
		if !resp.More || len(resp.Rows) == 0 {
			return out, nil
		}

		var cursor cursorRow
		last := resp.Rows[len(resp.Rows)-1]
		if err := json.Unmarshal(last, &cursor); err != nil || cursor.ID == nil {
			return nil, fmt.Errorf("table %s: cannot determine cursor field on row %s", req.Table, last)
		}
		req.LowerBound = strconv.FormatUint(*cursor.ID+1, 10)
	}
}
