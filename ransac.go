package pileq

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// fitGroundPlaneRANSAC fits a plane to the bottom-band candidate points
// by repeated 3-point sampling, counting inliers within ransacThreshold
// of the sampled plane, and keeping the best-scoring plane across
// ransacIterations rounds. The result's normal is snapped to the world
// up axis when it is within gravitySnapThreshold of vertical, matching
// the reference pipeline's gravity-snap behavior for handheld shots
// that are nearly level.
func fitGroundPlaneRANSAC(points [][3]float64, candidateIdx []int) (GroundPlane, bool) {
	if len(candidateIdx) < 3 {
		return GroundPlane{}, false
	}

	rng := rand.New(rand.NewSource(1))
	var best GroundPlane
	bestInliers := -1
	var bestNormal [3]float64
	var bestDist float64

	n := len(candidateIdx)
	for iter := 0; iter < ransacIterations; iter++ {
		i0 := candidateIdx[rng.Intn(n)]
		i1 := candidateIdx[rng.Intn(n)]
		i2 := candidateIdx[rng.Intn(n)]
		if i0 == i1 || i1 == i2 || i0 == i2 {
			continue
		}
		normal, dist, ok := planeFrom3Points(points[i0], points[i1], points[i2])
		if !ok {
			continue
		}

		inliers := 0
		for _, idx := range candidateIdx {
			if pointPlaneDistance(points[idx], normal, dist) < ransacThreshold {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			bestNormal = normal
			bestDist = dist
		}
	}

	if bestInliers < 3 {
		return GroundPlane{}, false
	}

	normal := gravitySnap(bestNormal)
	ratio := float64(bestInliers) / float64(n)

	best = GroundPlane{
		Normal:      normal,
		Distance:    bestDist,
		InlierCount: bestInliers,
		InlierRatio: ratio,
		IsValid:     ratio > 0.05,
	}
	return best, best.IsValid
}

func planeFrom3Points(p0, p1, p2 [3]float64) (normal [3]float64, dist float64, ok bool) {
	v1 := sub3(p1, p0)
	v2 := sub3(p2, p0)
	n := cross3(v1, v2)
	norm := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if norm < 1e-9 {
		return normal, 0, false
	}
	n = [3]float64{n[0] / norm, n[1] / norm, n[2] / norm}
	d := -(n[0]*p0[0] + n[1]*p0[1] + n[2]*p0[2])
	return n, d, true
}

func pointPlaneDistance(p, normal [3]float64, dist float64) float64 {
	return math.Abs(normal[0]*p[0] + normal[1]*p[1] + normal[2]*p[2] + dist)
}

// gravitySnap pulls a near-vertical normal exactly onto the Y axis when
// it is within gravitySnapThreshold (as a cosine-angle tolerance), so
// tiny handheld tilt doesn't propagate into the rectification rotation.
func gravitySnap(normal [3]float64) [3]float64 {
	up := [3]float64{0, 1, 0}
	if normal[1] < 0 {
		normal = [3]float64{-normal[0], -normal[1], -normal[2]}
	}
	cosAngle := normal[0]*up[0] + normal[1]*up[1] + normal[2]*up[2]
	if 1-cosAngle < gravitySnapThreshold {
		return up
	}
	return normal
}

// rectifyToGroundPlane rotates every point so the fitted ground normal
// aligns with world-up, using gonum for the rotation-matrix algebra.
func rectifyToGroundPlane(points [][3]float64, plane GroundPlane) [][3]float64 {
	up := [3]float64{0, 1, 0}
	r := rotationBetween(plane.Normal, up)

	out := make([][3]float64, len(points))
	for i, p := range points {
		vec := mat.NewVecDense(3, []float64{p[0], p[1], p[2]})
		var res mat.VecDense
		res.MulVec(r, vec)
		out[i] = [3]float64{res.AtVec(0), res.AtVec(1), res.AtVec(2)}
	}
	return out
}

// rotationBetween builds the rotation matrix that maps vector a onto
// vector b via Rodrigues' rotation formula.
func rotationBetween(a, b [3]float64) *mat.Dense {
	v := cross3(a, b)
	s := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	c := a[0]*b[0] + a[1]*b[1] + a[2]*b[2]

	if s < 1e-9 {
		if c > 0 {
			return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
		}
		return mat.NewDense(3, 3, []float64{-1, 0, 0, 0, -1, 0, 0, 0, 1})
	}

	vx := mat.NewDense(3, 3, []float64{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	})
	var vx2 mat.Dense
	vx2.Mul(vx, vx)

	var r mat.Dense
	r.Scale((1-c)/(s*s), &vx2)
	r.Add(&r, vx)
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	r.Add(&r, identity)
	return &r
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
