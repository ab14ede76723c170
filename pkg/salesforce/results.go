package salesforce

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"io"

	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/metrics"
	"github.com/datastreamhq/forcetap/pkg/models"
)

// resultList is the XML listing of a batch's result set IDs. The
// platform always wraps the IDs in a list element, even for a single
// result.
type resultList struct {
	XMLName xml.Name `xml:"result-list"`
	Results []string `xml:"result"`
}

// batchResultIDs fetches the result set IDs for a completed batch.
func (c *Client) batchResultIDs(ctx context.Context, jobID, batchID string) ([]string, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.bulkURL(instanceURL, "job/"+jobID+"/batch/"+batchID+"/result"),
		bulkHeaders(accessToken, "application/json"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var list resultList
	if err := xml.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode result list")
	}
	return list.Results, nil
}

// RecordIterator streams the records of a completed batch. Result sets
// are opened lazily, one at a time; each CSV body is decoded row by row
// so a multi-gigabyte result never sits in memory at once. The iterator
// is forward-only and must be Closed when abandoned early.
//
//	for it.Next() {
//	    rec := it.Record()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type RecordIterator struct {
	client *Client
	ctx    context.Context

	stream  string
	jobID   string
	batchID string

	resultIDs []string
	idx       int

	body   io.ReadCloser
	reader *csv.Reader
	header []string

	cur    *models.Record
	err    error
	closed bool
}

// newRecordIterator fetches the batch's result set IDs and returns a
// lazy iterator over them.
func (c *Client) newRecordIterator(ctx context.Context, stream, jobID, batchID string) (*RecordIterator, error) {
	ids, err := c.batchResultIDs(ctx, jobID, batchID)
	if err != nil {
		return nil, err
	}
	return &RecordIterator{
		client:    c,
		ctx:       ctx,
		stream:    stream,
		jobID:     jobID,
		batchID:   batchID,
		resultIDs: ids,
	}, nil
}

// emptyIterator yields no records; used for Not Processed batches.
func emptyIterator(stream string) *RecordIterator {
	return &RecordIterator{stream: stream, closed: true}
}

// Next advances to the next record. It returns false when the batch is
// exhausted or an error occurred; check Err after the loop.
func (it *RecordIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}

	for {
		if it.reader == nil {
			if !it.openNextResult() {
				return false
			}
		}

		row, err := it.reader.Read()
		if err == io.EOF {
			it.closeBody()
			continue
		}
		if err != nil {
			it.err = errors.Wrap(err, errors.ErrorTypeData, "failed to read result row")
			it.closeBody()
			return false
		}

		it.cur = it.zipRow(row)
		metrics.RecordsExtracted.WithLabelValues(it.stream).Inc()
		return true
	}
}

// Record returns the record produced by the last successful Next.
func (it *RecordIterator) Record() *models.Record {
	return it.cur
}

// Err returns the first error encountered while iterating.
func (it *RecordIterator) Err() error {
	return it.err
}

// Close releases the open result body, if any. Safe to call more than
// once and after exhaustion.
func (it *RecordIterator) Close() error {
	it.closeBody()
	it.closed = true
	return nil
}

// openNextResult opens the next result set body and reads its header
// row. Returns false when no result sets remain.
func (it *RecordIterator) openNextResult() bool {
	for it.idx < len(it.resultIDs) {
		resultID := it.resultIDs[it.idx]
		it.idx++

		accessToken, instanceURL, err := it.client.session.Snapshot()
		if err != nil {
			it.err = err
			return false
		}

		url := it.client.bulkURL(instanceURL,
			"job/"+it.jobID+"/batch/"+it.batchID+"/result/"+resultID)
		resp, err := it.client.http.Get(it.ctx, url, bulkHeaders(accessToken, "text/csv"))
		if err != nil {
			it.err = err
			return false
		}

		it.body = resp.Body
		it.reader = csv.NewReader(resp.Body)
		// Rows are zipped with the header positionally; tolerate ragged rows
		it.reader.FieldsPerRecord = -1

		header, err := it.reader.Read()
		if err == io.EOF {
			// Empty result set; move on to the next one
			it.closeBody()
			continue
		}
		if err != nil {
			it.err = errors.Wrap(err, errors.ErrorTypeData, "failed to read result header")
			it.closeBody()
			return false
		}
		it.header = header
		return true
	}
	it.closed = true
	return false
}

// zipRow pairs header names with row values positionally. Extra values
// beyond the header are dropped; missing trailing values leave fields
// absent rather than empty.
func (it *RecordIterator) zipRow(row []string) *models.Record {
	n := len(it.header)
	if len(row) < n {
		n = len(row)
	}

	data := make(map[string]string, n)
	for i := 0; i < n; i++ {
		data[it.header[i]] = row[i]
	}

	rec := models.NewRecord(it.stream, data)
	rec.Metadata.Source = "salesforce"
	rec.Metadata.JobID = it.jobID
	rec.Metadata.BatchID = it.batchID
	return rec
}

func (it *RecordIterator) closeBody() {
	if it.body != nil {
		_ = it.body.Close()
		it.body = nil
	}
	it.reader = nil
	it.header = nil
}
