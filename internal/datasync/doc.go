// Package datasync keeps one cached collection in sync with the server
// through create/update/delete patch messages.
//
// On every (re)connect the synchronizer authenticates, replays its
// subscriptions and requests a full fetch. Patches then mutate the cache
// in arrival order: data_update replaces wholesale, data_created prepends,
// data_updated merges shallowly by id, data_deleted removes by id.
package datasync
