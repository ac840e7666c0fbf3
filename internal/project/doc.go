// Package project owns the on-disk set of projects under
// <data_dir>/projects. A Catalog opens each project's artifact store at most
// once per process, holding its file lock for as long as the catalog lives,
// and hands out the hub built on top of it.
package project
