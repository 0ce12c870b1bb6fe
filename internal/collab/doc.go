// Package collab replicates a shared document: a snapshot on join, then a
// stream of edit operations applied in arrival order.
//
// There is no operational transform or version vector. Concurrent editors
// race and the last writer's positions win.
package collab
