package agent

import "math"

// Flocking parameters.
const (
	NeighborRadius    = 50.0
	SeparationRadius  = 20.0
	SeparationWeight  = 0.1
	AlignmentWeight   = 0.05
	CohesionWeight    = 0.05
	CenterPullWeight  = 0.01
	coordinationLimit = 1e6
)

// UpdatePosition moves the agent one step using a boids-style rule:
// separation from close neighbors, alignment and cohesion toward the
// neighbor centroid, and a weak pull toward the swarm center.
func (a *Agent) UpdatePosition(center Position, neighbors []*Agent) {
	var sepX, sepY, sumX, sumY float64
	count := 0

	for _, n := range neighbors {
		if n == nil || n.ID == a.ID {
			continue
		}
		d := Distance(a.Position, n.Position)
		if d >= NeighborRadius {
			continue
		}
		count++
		if d < SeparationRadius {
			sepX += a.Position.X - n.Position.X
			sepY += a.Position.Y - n.Position.Y
		}
		sumX += n.Position.X
		sumY += n.Position.Y
	}

	dx := sepX*SeparationWeight + (center.X-a.Position.X)*CenterPullWeight
	dy := sepY*SeparationWeight + (center.Y-a.Position.Y)*CenterPullWeight
	if count > 0 {
		avgX, avgY := sumX/float64(count), sumY/float64(count)
		dx += (avgX - a.Position.X) * (AlignmentWeight + CohesionWeight)
		dy += (avgY - a.Position.Y) * (AlignmentWeight + CohesionWeight)
	}

	a.Position = Position{
		X: clamp(a.Position.X+dx, -coordinationLimit, coordinationLimit),
		Y: clamp(a.Position.Y+dy, -coordinationLimit, coordinationLimit),
	}
}

// Distance returns the euclidean distance between two positions.
func Distance(p, q Position) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// SwarmCenter returns the centroid of the given agents.
func SwarmCenter(agents []*Agent) Position {
	if len(agents) == 0 {
		return Position{}
	}
	var x, y float64
	for _, a := range agents {
		x += a.Position.X
		y += a.Position.Y
	}
	n := float64(len(agents))
	return Position{X: x / n, Y: y / n}
}

// Cohesion scores how tightly the swarm is packed, in (0,1].
// 1 means every agent sits on the centroid.
func Cohesion(agents []*Agent) float64 {
	if len(agents) < 2 {
		return 1
	}
	center := SwarmCenter(agents)
	var total float64
	for _, a := range agents {
		total += Distance(a.Position, center)
	}
	return 1 / (1 + total/float64(len(agents))/NeighborRadius)
}
