package search

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"freilog/api/internal/catalog"
)

const idxCatalog = "freilog_catalog"

type catalogDoc struct {
	UID    string   `json:"uid"`
	Kind   string   `json:"kind"`
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Groups []string `json:"groups"`
}

// Meili wraps the Meilisearch client with a background health check, so an
// unreachable instance degrades to the in-memory scan instead of failing
// requests.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates the client and configures the catalog index.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{client: client, done: make(chan struct{})}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxCatalog, PrimaryKey: "uid"}); err != nil {
		log.Printf("search: create index %s: %v", idxCatalog, err)
	}
	index := m.client.Index(idxCatalog)
	filterable := []interface{}{"kind", "groups"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCatalog, err)
	}
	searchable := []string{"text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCatalog, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.configureIndex()
			}
		}
	}
}

// Healthy reports the last known health state.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Close stops the health loop.
func (m *Meili) Close() {
	close(m.done)
}

// catalogDocs flattens both catalogs into index documents. The UID carries
// the kind prefix so angebote and observation entries with the same id
// cannot collide.
func catalogDocs(angebote, observations []catalog.Entry) []catalogDoc {
	docs := make([]catalogDoc, 0, len(angebote)+len(observations))
	for _, e := range angebote {
		docs = append(docs, catalogDoc{UID: "angebote-" + e.ID, Kind: "angebote", ID: e.ID, Text: e.Text, Groups: e.Groups})
	}
	for _, e := range observations {
		docs = append(docs, catalogDoc{UID: "observations-" + e.ID, Kind: "observations", ID: e.ID, Text: e.Text, Groups: e.Groups})
	}
	return docs
}

// IndexCatalogs replaces the catalog documents.
func (m *Meili) IndexCatalogs(angebote, observations []catalog.Entry) {
	docs := catalogDocs(angebote, observations)
	index := m.client.Index(idxCatalog)
	if _, err := index.DeleteAllDocuments(nil); err != nil {
		log.Printf("search: clear catalog index: %v", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	if _, err := index.AddDocuments(docs, nil); err != nil {
		log.Printf("search: index catalogs: %v", err)
	}
}

// Search queries the catalog index.
func (m *Meili) Search(query string, limit int) ([]Result, error) {
	resp, err := m.client.Index(idxCatalog).Search(query, &meili.SearchRequest{Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		result := Result{
			Kind: decodeString(hit, "kind"),
			ID:   decodeString(hit, "id"),
			Text: decodeString(hit, "text"),
		}
		if raw, ok := hit["groups"]; ok {
			var groups []string
			if err := json.Unmarshal(raw, &groups); err == nil {
				result.Groups = groups
			}
		}
		out = append(out, result)
	}
	return out, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
