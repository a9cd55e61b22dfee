// Package json decodes the two documents served by the statistical data
// service: query results and classification trees.
//
// Numbers are decoded with UseNumber so measure values keep their exact
// textual precision until a caller decides how to render them.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"statflat/internal/schema"
)

// DecodeQuery reads one query result document from r.
//
// The document must be a JSON object; hierarchies, measures and data may be
// empty, which downstream stages report as a schema mismatch.
func DecodeQuery(r io.Reader) (*schema.Query, error) {
	d := json.NewDecoder(r)
	d.UseNumber()

	var q schema.Query
	if err := d.Decode(&q); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("json parser: empty query document")
		}
		return nil, fmt.Errorf("json parser: decode query: %w", err)
	}
	return &q, nil
}

// DecodeHierarchy reads one classification tree from r.
//
// Two shapes are accepted:
//
//	{"data": {"id": ..., "cod": ..., "children": [...]}}
//	{"id": ..., "cod": ..., "children": [...]}
//
// When the envelope's "data" is not an object (null, array, scalar) the tree
// is empty and DecodeHierarchy returns (nil, nil).
func DecodeHierarchy(r io.Reader) (*schema.Node, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("json parser: read hierarchy: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("json parser: hierarchy root must be an object: %w", err)
	}

	payload := body
	if data, ok := env["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) == 0 || data[0] != '{' {
			return nil, nil
		}
		payload = data
	}

	var root schema.Node
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("json parser: decode hierarchy: %w", err)
	}
	return &root, nil
}
