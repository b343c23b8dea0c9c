package probe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// findProvsPeerResponse is the DHT query event type carrying provider records.
const findProvsPeerResponse = 4

type indexerRecord struct {
	MultihashResults []struct {
		ProviderResults []struct {
			Provider struct {
				ID string `json:"ID"`
			} `json:"Provider"`
		} `json:"ProviderResults"`
	} `json:"MultihashResults"`
}

type findProvsRecord struct {
	Type      int `json:"Type"`
	Responses []struct {
		ID string `json:"ID"`
	} `json:"Responses"`
}

// lineParser extracts provider IDs from one NDJSON record.
type lineParser func(line []byte) ([]string, error)

func parseIndexerLine(line []byte) ([]string, error) {
	var rec indexerRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	var ids []string
	for _, mr := range rec.MultihashResults {
		for _, pr := range mr.ProviderResults {
			ids = append(ids, pr.Provider.ID)
		}
	}
	return ids, nil
}

func parseFindProvsLine(line []byte) ([]string, error) {
	var rec findProvsRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	if rec.Type != findProvsPeerResponse {
		return nil, nil
	}
	ids := make([]string, 0, len(rec.Responses))
	for _, r := range rec.Responses {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// ParseProviders splits body into lines, parses each independently and returns
// the unique provider IDs in first-seen order. Malformed lines are reported to
// onMalformed and skipped.
func ParseProviders(kind Kind, body []byte, onMalformed func(line int, err error)) ([]string, error) {
	var parse lineParser
	switch kind {
	case IndexerDiscovery:
		parse = parseIndexerLine
	case DirectDiscovery:
		parse = parseFindProvsLine
	default:
		return nil, fmt.Errorf("backend kind %s does not return providers", kind)
	}

	seen := make(map[string]struct{})
	providers := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ids, err := parse(line)
		if err != nil {
			if onMalformed != nil {
				onMalformed(lineNo, err)
			}
			continue
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			providers = append(providers, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return providers, fmt.Errorf("scan %s response: %w", kind, err)
	}
	return providers, nil
}
