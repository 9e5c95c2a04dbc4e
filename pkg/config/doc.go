/*
Package config loads a simulation manifest: a YAML document describing
a Kernel run — its scheduling mode and the set of tasks to spawn before
the first dispatch. It follows the same generic apiVersion/kind/metadata/spec
envelope the command-line apply workflow expects, so a manifest reads
the same way whether it describes one task or fifty.
*/
package config
