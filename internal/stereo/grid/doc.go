// Package grid owns the sparse 3D occupancy grid.
//
// Responsibilities: cell storage and lifecycle, evidence ray insertion in
// mapping and localise-only modes, the localisation matching score and
// pose search, tile encoding for persistence, and extraction of height
// maps and voxels for visualisation.
//
// Storage is a flat slice of column pointers (x fastest); a column is
// allocated the first time mapping deposits evidence in it and holds a
// dense vertical array of cells. A cell whose log-odds equals the
// NoOccupancyEvidence sentinel has never been touched.
//
// An OccupancyGrid is not safe for concurrent use. The metagrid runs its
// two grids on separate goroutines; they share only read-only sensor
// model tables.
package grid
