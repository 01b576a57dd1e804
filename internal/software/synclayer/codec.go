package synclayer

import (
	"encoding/json"
	"errors"

	"ridemarket/internal/general/docmatch"
	"ridemarket/internal/ports"
)

func isNotFound(err error) bool { return errors.Is(err, ports.ErrNotFound) }

// Encode turns a JSON-tagged struct into document fields. The "id" key is
// dropped since it is the document key, not a field.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	return docmatch.Normalize(fields)
}

// Decode fills a JSON-tagged struct from a document, with "id" set to the
// document key.
func Decode[T any](doc *ports.Document) (*T, error) {
	fields := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		fields[k] = v
	}
	fields["id"] = doc.ID
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeAll decodes every document of a snapshot or query result.
func DecodeAll[T any](docs []*ports.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
