// Package image defines the image query/metadata model, the pluggable
// catalog host interface, and the resolver that maps a user query onto
// concrete image info via the registered hosts.
package image
