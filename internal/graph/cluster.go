package graph

import "fmt"

// ClusterScore scores a neighborhood purely on its size. The higher tier wins.
func ClusterScore(size int) (float64, []string) {
	switch {
	case size > 20:
		return 30, []string{fmt.Sprintf("Large connected cluster (%d nodes)", size)}
	case size > 10:
		return 15, []string{fmt.Sprintf("Moderate cluster size (%d nodes)", size)}
	}
	return 0, nil
}
