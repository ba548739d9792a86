// Package dataset loads the golden evaluation datasets and the RAG
// knowledge base. Datasets are read once at startup and treated as
// immutable; a missing required field is a load-time error, not a
// per-question runtime failure.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Question is one golden-dataset entry. ImagePath is optional and, when
// set, names an image file relative to the dataset's data directory.
type Question struct {
	ID             string
	Category       string
	Input          string
	ExpectedOutput string
	ImagePath      string
}

// RAGQuestion extends Question with the ground-truth relevant chunk IDs used
// for retrieval scoring.
type RAGQuestion struct {
	Question
	RelevantChunkIDs []int
}

// LoadGolden reads the golden dataset CSV. Required columns: id, category,
// input, expected_output. Optional: image_path.
func LoadGolden(path string) ([]Question, error) {
	rows, index, err := readCSV(path, []string{"id", "category", "input", "expected_output"})
	if err != nil {
		return nil, err
	}
	questions := make([]Question, 0, len(rows))
	for i, row := range rows {
		q := Question{
			ID:             row[index["id"]],
			Category:       row[index["category"]],
			Input:          row[index["input"]],
			ExpectedOutput: row[index["expected_output"]],
		}
		if col, ok := index["image_path"]; ok {
			q.ImagePath = strings.TrimSpace(row[col])
		}
		if err := q.validate(i); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("dataset %s has no questions", path)
	}
	return questions, nil
}

// LoadRAG reads the RAG dataset CSV, which adds a relevant_chunk_ids column
// holding a JSON-style integer list (a bare integer is accepted too).
func LoadRAG(path string) ([]RAGQuestion, error) {
	rows, index, err := readCSV(path, []string{"id", "category", "input", "expected_output", "relevant_chunk_ids"})
	if err != nil {
		return nil, err
	}
	questions := make([]RAGQuestion, 0, len(rows))
	for i, row := range rows {
		q := RAGQuestion{
			Question: Question{
				ID:             row[index["id"]],
				Category:       row[index["category"]],
				Input:          row[index["input"]],
				ExpectedOutput: row[index["expected_output"]],
			},
		}
		if err := q.validate(i); err != nil {
			return nil, err
		}
		ids, err := parseChunkIDs(row[index["relevant_chunk_ids"]])
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		q.RelevantChunkIDs = ids
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("dataset %s has no questions", path)
	}
	return questions, nil
}

func (q Question) validate(row int) error {
	if q.ID == "" {
		return fmt.Errorf("row %d: missing id", row+1)
	}
	for field, value := range map[string]string{
		"category":        q.Category,
		"input":           q.Input,
		"expected_output": q.ExpectedOutput,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("question %s: missing %s", q.ID, field)
		}
	}
	return nil
}

func readCSV(path string, required []string) (rows [][]string, index map[string]int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}

	index = make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("dataset %s missing column %q", path, col)
		}
	}
	return records[1:], index, nil
}

// parseChunkIDs accepts "[1, 2]" or "3".
func parseChunkIDs(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err == nil {
		return ids, nil
	}
	var single int
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		return []int{single}, nil
	}
	return nil, fmt.Errorf("invalid relevant_chunk_ids %q", raw)
}
