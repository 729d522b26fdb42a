package pileq

import (
	"encoding/json"
	"os"
)

// WriteJSON serialises data to a JSON file on the local filesystem.
func WriteJSON(path string, data any) (int, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.Write(jsn)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// JSONDumps constructs a JSON string of the supplied data.
func JSONDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}

// JSONIndentDumps constructs a JSON string of the supplied data using
// an indentation of four spaces.
func JSONIndentDumps(data any) (string, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}
