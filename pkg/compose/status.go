package compose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable is shown for missing status fields.
const NotAvailable = "N/A"

// Publisher is one published port of a container.
type Publisher struct {
	URL           string `json:"URL"`
	TargetPort    int    `json:"TargetPort"`
	PublishedPort int    `json:"PublishedPort"`
	Protocol      string `json:"Protocol"`
}

// ContainerStatus is one entry of `compose ps --format json`.
type ContainerStatus struct {
	ID         string      `json:"ID"`
	Name       string      `json:"Name"`
	Service    string      `json:"Service"`
	Image      string      `json:"Image"`
	State      string      `json:"State"`
	Status     string      `json:"Status"`
	Health     string      `json:"Health"`
	ExitCode   int         `json:"ExitCode"`
	Publishers []Publisher `json:"Publishers"`
}

// Running reports whether the container is up.
func (c ContainerStatus) Running() bool {
	return c.State == "running"
}

// Row returns the display columns name, service, state, status and ports,
// with N/A for missing values.
func (c ContainerStatus) Row() []string {
	return []string{
		orNA(c.Name),
		orNA(c.Service),
		orNA(c.State),
		orNA(c.Status),
		FormatPorts(c.Publishers),
	}
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

// ParseStatus decodes compose ps JSON output. Newer compose versions print
// one object per line; older ones print a single array.
func ParseStatus(data []byte) ([]ContainerStatus, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var statuses []ContainerStatus
		if err := json.Unmarshal(data, &statuses); err != nil {
			return nil, fmt.Errorf("failed to parse compose status: %w", err)
		}
		return statuses, nil
	}

	var statuses []ContainerStatus
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var s ContainerStatus
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, fmt.Errorf("failed to parse compose status line %d: %w", line, err)
		}
		statuses = append(statuses, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read compose status: %w", err)
	}
	return statuses, nil
}

// FormatPorts renders published->target pairs. Unpublished ports are
// skipped; N/A is returned when nothing is published.
func FormatPorts(publishers []Publisher) string {
	var ports []string
	for _, p := range publishers {
		if p.PublishedPort == 0 || p.TargetPort == 0 {
			continue
		}
		port := strconv.Itoa(p.PublishedPort) + "->" + strconv.Itoa(p.TargetPort)
		if p.Protocol != "" && p.Protocol != "tcp" {
			port += "/" + p.Protocol
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return NotAvailable
	}
	return strings.Join(ports, ", ")
}
