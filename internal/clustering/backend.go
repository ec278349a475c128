package clustering

import (
	"fmt"
	"reflect"

	humility "github.com/humilityai/hdbscan"

	"topicwire/internal/core"
	"topicwire/internal/hdbscan"
)

// Backend names
const (
	BackendNative   = "native"
	BackendHumility = "humility"
)

// Backend runs the base density clustering over unit-length vectors.
type Backend interface {
	Name() string
	Cluster(points [][]float64, params hdbscan.Params) (hdbscan.Result, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", BackendNative:
		return nativeBackend{}, nil
	case BackendHumility:
		return humilityBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, name)
	}
}

// nativeBackend is the in-tree HDBSCAN with leaf selection and epsilon merging.
type nativeBackend struct{}

func (nativeBackend) Name() string { return BackendNative }

func (nativeBackend) Cluster(points [][]float64, params hdbscan.Params) (hdbscan.Result, error) {
	return hdbscan.Cluster(points, params)
}

// humilityBackend delegates to github.com/humilityai/hdbscan. That library
// only takes a minimum cluster size: MinSamples and the selection epsilon
// are ignored, and every clustered point gets probability 1.
type humilityBackend struct{}

func (humilityBackend) Name() string { return BackendHumility }

func (humilityBackend) Cluster(points [][]float64, params hdbscan.Params) (hdbscan.Result, error) {
	res := hdbscan.Result{
		Labels:        make([]int, len(points)),
		Probabilities: make([]float64, len(points)),
	}
	for i := range res.Labels {
		res.Labels[i] = core.NoiseLabel
	}

	mcs := params.MinClusterSize
	if mcs < 2 {
		mcs = 2
	}
	if len(points) < mcs {
		return res, nil
	}

	c, err := humility.NewClustering(points, mcs)
	if err != nil {
		return hdbscan.Result{}, fmt.Errorf("failed to create HDBSCAN clusterer: %w", err)
	}
	c = c.OutlierDetection()

	if err := c.Run(humility.EuclideanDistance, humility.VarianceScore, true); err != nil {
		return hdbscan.Result{}, fmt.Errorf("HDBSCAN clustering failed: %w", err)
	}

	label := 0
	for _, cluster := range extractClusterData(c) {
		assigned := 0
		for _, p := range cluster.Points {
			if p < 0 || p >= len(points) || res.Labels[p] != core.NoiseLabel {
				continue
			}
			res.Labels[p] = label
			res.Probabilities[p] = 1.0
			assigned++
		}
		if assigned > 0 {
			label++
		}
	}
	res.NumClusters = label
	return res, nil
}

// clusterData holds extracted cluster information from a humilityai run
type clusterData struct {
	Points []int
}

// extractClusterData reads the unexported cluster list off a finished
// Clustering. The library exposes Clusters as a slice of *cluster whose
// Points []int are the member indices.
func extractClusterData(clustering *humility.Clustering) []clusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() || clustersField.Kind() != reflect.Slice {
		return nil
	}

	result := make([]clusterData, clustersField.Len())
	for i := 0; i < clustersField.Len(); i++ {
		clusterPtr := clustersField.Index(i)
		if clusterPtr.Kind() == reflect.Ptr {
			if clusterPtr.IsNil() {
				continue
			}
			clusterPtr = clusterPtr.Elem()
		}

		if pointsField := clusterPtr.FieldByName("Points"); pointsField.IsValid() && pointsField.Kind() == reflect.Slice {
			pts := make([]int, pointsField.Len())
			for j := range pts {
				pts[j] = int(pointsField.Index(j).Int())
			}
			result[i].Points = pts
		}
	}
	return result
}
