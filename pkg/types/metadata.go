package types

// ServerMetadata is returned by the /metadata endpoint of the metrics server.
type ServerMetadata struct {
	Version  string `json:"version"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}
