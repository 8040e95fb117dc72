// Package sensormodel owns the inverse stereo sensor model.
//
// Responsibilities: probability/log-odds conversion tables, the half
// Gaussian lateral falloff, the vacancy profile and the per-disparity ray
// model lookup that gives the occupied-region probability along a ray.
// Key types: LogOddsTable, HalfGaussian, VacancyTable, RayModel.
//
// Everything here is built once at startup and read-only afterwards, so
// the tables may be shared between grids and goroutines.
package sensormodel
