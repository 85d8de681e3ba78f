package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	testMetadataPath    = "/computeMetadata/v1"
	testClusterNamePath = "/computeMetadata/v1/instance/attributes/cluster-name"
	testProjectIDPath   = "/computeMetadata/v1/project/project-id"
	testZonePath        = "/computeMetadata/v1/instance/zone"
)

func TestDetector_ResolveID_GCP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Metadata-Flavor", gcpMetadataFlavor)
		switch r.URL.Path {
		case testMetadataPath + "/":
			w.WriteHeader(http.StatusOK)
		case testClusterNamePath:
			_, _ = w.Write([]byte("test-cluster"))
		case testProjectIDPath:
			_, _ = w.Write([]byte("test-project"))
		case testZonePath:
			_, _ = w.Write([]byte("projects/123/zones/us-central1-a"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	detector := NewDetectorWithURL(client, server.URL+testMetadataPath)

	clusterID, err := detector.ResolveID(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "gcp/test-project/us-central1/test-cluster"
	if clusterID != expected {
		t.Errorf("Expected cluster ID %q, got %q", expected, clusterID)
	}
}

func TestDetector_ResolveID_NotGCP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	detector := NewDetectorWithURL(client, server.URL+testMetadataPath)

	if _, err := detector.ResolveID(context.Background()); err != ErrNotDetected {
		t.Errorf("Expected ErrNotDetected, got: %v", err)
	}
}

func TestRegionFromZone(t *testing.T) {
	tests := []struct {
		zone   string
		region string
	}{
		{"us-central1-a", "us-central1"},
		{"europe-west4-b", "europe-west4"},
		{"nozone", "nozone"},
	}
	for _, tt := range tests {
		if got := regionFromZone(tt.zone); got != tt.region {
			t.Errorf("regionFromZone(%q) = %q, want %q", tt.zone, got, tt.region)
		}
	}
}
