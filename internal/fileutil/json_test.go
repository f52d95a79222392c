package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type testJSONData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestWriteJSONFile_NewFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rows.json")
	testData := []testJSONData{
		{ID: 1, Name: "Test 1"},
		{ID: 2, Name: "Test 2"},
	}

	written, err := WriteJSONFile(testData, filePath, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !written {
		t.Error("Expected file to be written")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	var got []testJSONData
	if err := json.Unmarshal(content, &got); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if len(got) != 2 || got[1].Name != "Test 2" {
		t.Errorf("Unexpected content: %+v", got)
	}
}

func TestWriteJSONFile_ExistingFileNoOverwrite(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rows.json")
	if err := os.WriteFile(filePath, []byte(`"old"`), 0644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	written, err := WriteJSONFile([]int{1}, filePath, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if written {
		t.Error("Expected file to be skipped")
	}

	content, _ := os.ReadFile(filePath)
	if string(content) != `"old"` {
		t.Errorf("File was modified: %s", content)
	}
}
