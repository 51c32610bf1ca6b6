// Package model implements loadable models: generic, cache-backed mirrors of
// server collections.
//
// A Model holds records of one endpoint keyed by id. It waits for the models
// it depends on, hydrates synchronously from persisted cache when it can,
// refreshes from the network, and publishes snapshots to subscribers. Three
// shapes are supported:
//
//   - ShapeList: the endpoint returns the whole collection as a JSON array.
//   - ShapePartial: the endpoint returns pages ({results, next, previous});
//     a page without neighbours is a complete snapshot. See PartialModel for
//     single-record refresh.
//   - ShapeSingle: the endpoint returns one object, kept under SingleKey.
//
// Every collection request takes a generation number when it is issued. A
// response older than the last applied one is dropped, and an id removed by
// a 404 is never re-inserted by a request issued before the removal.
package model
