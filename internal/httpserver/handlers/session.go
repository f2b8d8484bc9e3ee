package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

const defaultMaxBody = 1 << 20

type createFunc func(ctx context.Context, doc domain.Document) (string, error)

// Session creates or updates a session from a JSON document and answers with
// its name. Only POST is accepted.
func Session(d deps.Deps) http.HandlerFunc {
	return documentHandler(d, "session stored", d.Sessions.CreateOrUpdate)
}

// Preview stores a preview session under a name derived from its content.
func Preview(d deps.Deps) http.HandlerFunc {
	return documentHandler(d, "preview stored", d.Sessions.CreatePreview)
}

func documentHandler(d deps.Deps, msg string, create createFunc) http.HandlerFunc {
	limit := d.MaxBodySize
	if limit <= 0 {
		limit = defaultMaxBody
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		doc, err := decodeDocument(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		name, err := create(r.Context(), doc)
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		d.Logger.Info(msg,
			logger.String("session", name),
			logger.String("desired_name", doc.DesiredName),
			logger.Int("services", len(doc.Services)),
			logger.Int("domains", len(doc.Domains)))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(name))
	}
}

// decodeDocument reports undecodable bodies as validation errors so they
// share the 422 answer of semantically invalid documents.
func decodeDocument(body io.Reader) (domain.Document, error) {
	var doc domain.Document
	dec := json.NewDecoder(body)
	if err := dec.Decode(&doc); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return doc, &domain.ValidationError{Field: "body", Reason: fmt.Sprintf("larger than %d bytes", tooBig.Limit)}
		}
		return doc, &domain.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return doc, nil
}
