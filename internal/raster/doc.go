// Package raster owns the tile data model: co-registered pixel grids
// (bands), the tiles that group them, and the band accessor that pulls a
// scaled working set of bands out of a raw tile.
//
// Responsibilities: band storage on gonum dense matrices, shape checks,
// reflectance scaling, missing-band reporting.
// Key types: Band, Tile, BandSpec, MissingBandError.
//
// Dependency rule: raster depends on nothing else in this module. Bands are
// never written after construction, so tiles may share them freely; every
// operation that changes pixel values returns a new Band.
package raster
