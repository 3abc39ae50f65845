/*
Package config loads shadowd's configuration: the data directory, size and
queue limits, the per-shadow sync set and its direction/owner, the cloud
rate limit, and the sync strategy (immediate or periodic).

Parses operator-supplied YAML with gopkg.in/yaml.v3, the same library
this codebase's CLI resource-apply command uses; here the shape is a
single top-level document instead of a Kind-dispatched resource list,
since shadowd has one coherent config object rather than a set of
applied resources.
*/
package config
