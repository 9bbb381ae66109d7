// Package diffset turns raw, noisy object detections into the ordered set of
// non-overlapping regions a puzzle is played on.
//
// The pipeline is deterministic for a given input order:
//
//  1. Size filter: rectangles covering more than MaxAreaFraction of the image
//     are treated as background and dropped.
//  2. Parent elision: the survivors are arranged in a containment forest
//     (BuildForest) and only leaves are kept, so "shirt" wins over "person".
//  3. Overlap pass: every leaf is compared with every other leaf. Heavy
//     overlaps are dropped, moderate ones are shrunk around their center.
//
// Build wraps the three steps and numbers the result.
package diffset
