package kernel

// Mesh is an indexed triangle mesh.
// Vertices has 3 floats per vertex (x,y,z), Indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float64 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`     // component name, empty when unnamed
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0 || len(m.Indices) == 0
}

// Vertex returns the i-th vertex.
func (m *Mesh) Vertex(i uint32) [3]float64 {
	return [3]float64{m.Vertices[i*3], m.Vertices[i*3+1], m.Vertices[i*3+2]}
}

// Triangle returns the three vertices of the t-th triangle.
func (m *Mesh) Triangle(t int) [3][3]float64 {
	return [3][3]float64{
		m.Vertex(m.Indices[t*3]),
		m.Vertex(m.Indices[t*3+1]),
		m.Vertex(m.Indices[t*3+2]),
	}
}

// AddTriangle appends a triangle given by its corner positions. Vertices are
// not shared; welding is left to the consumer.
func (m *Mesh) AddTriangle(a, b, c [3]float64) {
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, a[0], a[1], a[2], b[0], b[1], b[2], c[0], c[1], c[2])
	m.Indices = append(m.Indices, base, base+1, base+2)
}

// Solid is an opaque handle to a Modeler solid.
type Solid interface {
	Bounded
}

// Modeler is a constructive solid geometry backend used to author
// reference models. Solids are opaque handles owned by the Modeler.
type Modeler interface {
	// Primitives
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
