package aggregate

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var filenamePattern = regexp.MustCompile(`^(\d+)vu_(?:(\d+)B_)?`)

// artifactFile is a run artifact name with the parameters parsed from it.
type artifactFile struct {
	Name        string
	Concurrency int
	Secondary   int64
	HasSecond   bool
}

// parseName extracts the worker count and optional secondary parameter.
func parseName(name string) (artifactFile, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return artifactFile{}, false
	}
	vu, err := strconv.Atoi(m[1])
	if err != nil {
		return artifactFile{}, false
	}
	f := artifactFile{Name: name, Concurrency: vu}
	if m[2] != "" {
		secondary, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return artifactFile{}, false
		}
		f.Secondary = secondary
		f.HasSecond = true
	}
	return f, true
}

// less orders by worker count, then secondary parameter; a missing
// secondary parameter sorts first.
func (a artifactFile) less(b artifactFile) bool {
	if a.Concurrency != b.Concurrency {
		return a.Concurrency < b.Concurrency
	}
	if a.HasSecond != b.HasSecond {
		return !a.HasSecond
	}
	return a.Secondary < b.Secondary
}

// SortNames orders artifact file names the way rows appear in a CSV. Names
// that do not match the artifact pattern are dropped.
func SortNames(names []string) []string {
	files := make([]artifactFile, 0, len(names))
	for _, name := range names {
		if f, ok := parseName(name); ok {
			files = append(files, f)
		}
	}
	sortFiles(files)
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func sortFiles(files []artifactFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.SliceStable(files, func(i, j int) bool { return files[i].less(files[j]) })
}

// listArtifacts returns the sorted artifact files of one test directory.
func listArtifacts(dir string, logger *log.Logger) ([]artifactFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []artifactFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".json") {
			logger.Printf("skipping %s: not a JSON artifact", filepath.Join(dir, name))
			continue
		}
		f, ok := parseName(name)
		if !ok {
			logger.Printf("skipping %s: name does not match <N>vu_[<M>B_]<time>.json", filepath.Join(dir, name))
			continue
		}
		files = append(files, f)
	}
	sortFiles(files)
	return files, nil
}
