package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// Cluster identity resolution for run event metadata. Only GKE
// autodetection is supported; anywhere else the operator passes
// -cluster-id explicitly.

const (
	gcpMetadataBase   = "http://metadata.google.internal/computeMetadata/v1"
	gcpMetadataFlavor = "Google"
)

// ErrNotDetected is returned when the metadata server is unreachable or
// does not identify itself as GCP.
var ErrNotDetected = errors.New("cluster identity not detected")

// Detector derives a cluster ID from the GCP metadata server.
type Detector struct {
	client      *http.Client
	metadataURL string
}

func NewDetector() *Detector {
	return &Detector{
		client:      &http.Client{Timeout: 3 * time.Second},
		metadataURL: gcpMetadataBase,
	}
}

// NewDetectorWithURL points the detector at a custom metadata endpoint (for testing)
func NewDetectorWithURL(client *http.Client, metadataURL string) *Detector {
	return &Detector{client: client, metadataURL: metadataURL}
}

// ResolveID probes the metadata server and, when it answers as GCP, builds
// a cluster ID of the form gcp/<project-id>/<region>/<cluster-name>.
func (d *Detector) ResolveID(ctx context.Context) (string, error) {
	if !d.onGCP(ctx) {
		return "", ErrNotDetected
	}

	clusterName, err := d.getMetadata(ctx, "/instance/attributes/cluster-name")
	if err != nil {
		return "", fmt.Errorf("failed to get cluster-name: %w", err)
	}

	projectID, err := d.getMetadata(ctx, "/project/project-id")
	if err != nil {
		return "", fmt.Errorf("failed to get project-id: %w", err)
	}

	// Zone metadata has the form projects/<project-number>/zones/<zone>.
	zone, err := d.getMetadata(ctx, "/instance/zone")
	if err != nil {
		return "", fmt.Errorf("failed to get zone: %w", err)
	}
	region := regionFromZone(path.Base(zone))

	return fmt.Sprintf("gcp/%s/%s/%s", projectID, region, clusterName), nil
}

func (d *Detector) onGCP(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.metadataURL+"/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", gcpMetadataFlavor)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK &&
		resp.Header.Get("Metadata-Flavor") == gcpMetadataFlavor
}

func (d *Detector) getMetadata(ctx context.Context, p string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.metadataURL+p, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", gcpMetadataFlavor)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// regionFromZone strips the zone suffix (us-central1-a -> us-central1).
func regionFromZone(zone string) string {
	lastDash := strings.LastIndex(zone, "-")
	if lastDash == -1 {
		return zone
	}
	return zone[:lastDash]
}
