package yolo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const UnknownLabel = "Unknown"

// ClassNames maps class ids to names, one per line of the names file.
type ClassNames []string

func LoadClassNames(path string) (ClassNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class names: %w", err)
	}
	defer f.Close()
	names, err := ParseClassNames(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return names, nil
}

// ParseClassNames keeps blank lines so ids stay aligned with line numbers.
func ParseClassNames(r io.Reader) (ClassNames, error) {
	var names ClassNames
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		names = append(names, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("class names list is empty")
	}
	return names, nil
}

func (c ClassNames) Resolve(id int) string {
	if id < 0 || id >= len(c) {
		return UnknownLabel
	}
	return c[id]
}
