// Package canon turns the resource references AWS Batch and ECS put in
// events (full ARNs, truncated ARNs, suffixed names) into one stable
// short identifier.
package canon

import (
	"strings"

	"batch-metrics/internal/model"
)

// DefaultClusterSuffix is appended by AWS Batch to the ECS cluster it
// creates for a compute environment, e.g. "prod-fleet_Batch_3f1c...".
const DefaultClusterSuffix = "_Batch"

// Kind selects the canonicalization rule for a field.
type Kind int

const (
	// Unknown fields are never rewritten.
	Unknown Kind = iota
	ClusterName
	QueueOrDefinitionName
)

// FieldKind returns the rule for a dimension / property key.
func FieldKind(key string) Kind {
	switch key {
	case model.KeyECSCluster:
		return ClusterName
	case model.KeyJobQueue, model.KeyJobDefinition:
		return QueueOrDefinitionName
	}
	return Unknown
}

// Canonicalizer holds the cluster suffix marker. The zero value uses
// DefaultClusterSuffix.
type Canonicalizer struct {
	ClusterSuffix string
}

// New returns a Canonicalizer for the given suffix marker.
func New(clusterSuffix string) Canonicalizer {
	return Canonicalizer{ClusterSuffix: clusterSuffix}
}

func (c Canonicalizer) suffix() string {
	if c.ClusterSuffix == "" {
		return DefaultClusterSuffix
	}
	return c.ClusterSuffix
}

// Canonicalize returns the short name of raw under the rule for kind.
//
// Never fails. A value that would canonicalize to an empty string
// (trailing "/", name made only of the suffix marker) is returned as is
// rather than guessed at.
//
//	ClusterName:           "arn:aws:ecs:...:cluster/prod-fleet_Batch_abc" -> "prod-fleet"
//	QueueOrDefinitionName: "arn:aws:batch:...:job-queue/high-priority"    -> "high-priority"
func (c Canonicalizer) Canonicalize(kind Kind, raw string) string {
	switch kind {
	case ClusterName:
		name := lastSegment(raw)
		if i := strings.Index(name, c.suffix()); i >= 0 {
			name = name[:i]
		}
		if name == "" {
			return raw
		}
		return name

	case QueueOrDefinitionName:
		name := lastSegment(raw)
		if name == "" {
			return raw
		}
		return name
	}
	return raw
}

// Field canonicalizes raw according to the rule for key.
func (c Canonicalizer) Field(key, raw string) string {
	return c.Canonicalize(FieldKind(key), raw)
}

func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
