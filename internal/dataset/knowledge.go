package dataset

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is one knowledge-base chunk used by the retriever.
type Document struct {
	ChunkID int    `json:"chunk_id"`
	Content string `json:"content"`
	Domain  string `json:"domain"`
	Topic   string `json:"topic"`
}

type knowledgeBase struct {
	Documents []Document `json:"documents"`
}

// LoadKnowledgeBase reads the knowledge-base JSON file.
func LoadKnowledgeBase(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var kb knowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}
	if len(kb.Documents) == 0 {
		return nil, fmt.Errorf("knowledge base %s has no documents", path)
	}
	for i, doc := range kb.Documents {
		if doc.Content == "" {
			return nil, fmt.Errorf("knowledge base document %d (chunk %d) has no content", i, doc.ChunkID)
		}
	}
	return kb.Documents, nil
}
