// Package fleet turns on 1-minute group metrics for the Auto Scaling groups
// AWS Batch creates for its compute environments.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/rs/zerolog/log"
)

// DefaultMarker is the launch template name fragment that identifies
// Batch-managed groups.
const DefaultMarker = "Batch-lt"

// Granularity is the only granularity EnableMetricsCollection accepts.
const Granularity = "1Minute"

// AutoScalingAPI is the part of the Auto Scaling client the reconciler uses.
type AutoScalingAPI interface {
	autoscaling.DescribeAutoScalingGroupsAPIClient
	EnableMetricsCollection(ctx context.Context, in *autoscaling.EnableMetricsCollectionInput, optFns ...func(*autoscaling.Options)) (*autoscaling.EnableMetricsCollectionOutput, error)
}

// GroupError is a failed EnableMetricsCollection call.
type GroupError struct {
	Group string
	Err   error
}

func (e GroupError) Error() string { return fmt.Sprintf("%s: %v", e.Group, e.Err) }
func (e GroupError) Unwrap() error { return e.Err }

// Report is the result of one reconcile pass.
type Report struct {
	Scanned int
	Enabled []string // groups EnableMetricsCollection was called (or, dry run, would be called) for
	Skipped []string // groups without a launch template
	Errors  []GroupError
}

// Err joins the per-group errors, nil when there are none.
func (r Report) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Reconciler
//
// Stateless and idempotent: enabling metrics that are already enabled
// is a no-op on the API side, so it can run on every deploy.
type Reconciler struct {
	client AutoScalingAPI
	marker string
	dryRun bool
}

// New returns a Reconciler. An empty marker means DefaultMarker.
func New(client AutoScalingAPI, marker string, dryRun bool) *Reconciler {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Reconciler{client: client, marker: marker, dryRun: dryRun}
}

// Reconcile
//
//  1. page through every group in the region
//  2. launch template name: MixedInstancesPolicy first, then LaunchTemplate
//  3. name contains the marker and the group already reports metrics:
//     enable all metrics at 1 minute granularity
//
// A failed describe page aborts the pass; a failed enable call is
// collected in the report and the pass continues.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	var rep Report

	p := autoscaling.NewDescribeAutoScalingGroupsPaginator(r.client, &autoscaling.DescribeAutoScalingGroupsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return rep, fmt.Errorf("describe auto scaling groups: %w", err)
		}

		for _, g := range page.AutoScalingGroups {
			rep.Scanned++
			r.reconcileGroup(ctx, g, &rep)
		}
	}

	log.Info().
		Int("scanned", rep.Scanned).
		Int("enabled", len(rep.Enabled)).
		Int("skipped", len(rep.Skipped)).
		Int("errors", len(rep.Errors)).
		Bool("dry_run", r.dryRun).
		Msg("fleet reconcile done")

	return rep, nil
}

func (r *Reconciler) reconcileGroup(ctx context.Context, g types.AutoScalingGroup, rep *Report) {
	name := aws.ToString(g.AutoScalingGroupName)

	lt, ok := LaunchTemplateName(g)
	if !ok {
		log.Warn().Str("group", name).Msg("no launch template, skipping")
		rep.Skipped = append(rep.Skipped, name)
		return
	}
	if !strings.Contains(lt, r.marker) || len(g.EnabledMetrics) == 0 {
		return
	}

	if r.dryRun {
		log.Info().Str("group", name).Str("launch_template", lt).Msg("would enable metrics collection")
		rep.Enabled = append(rep.Enabled, name)
		return
	}

	_, err := r.client.EnableMetricsCollection(ctx, &autoscaling.EnableMetricsCollectionInput{
		AutoScalingGroupName: aws.String(name),
		Granularity:          aws.String(Granularity),
	})
	if err != nil {
		log.Error().Err(err).Str("group", name).Msg("enable metrics collection failed")
		rep.Errors = append(rep.Errors, GroupError{Group: name, Err: err})
		return
	}

	log.Info().Str("group", name).Str("launch_template", lt).Msg("metrics collection enabled")
	rep.Enabled = append(rep.Enabled, name)
}

// LaunchTemplateName returns the group's launch template name, preferring
// the mixed instances policy (what Batch uses) over the plain LaunchTemplate.
func LaunchTemplateName(g types.AutoScalingGroup) (string, bool) {
	if mip := g.MixedInstancesPolicy; mip != nil && mip.LaunchTemplate != nil {
		if lts := mip.LaunchTemplate.LaunchTemplateSpecification; lts != nil && lts.LaunchTemplateName != nil {
			return *lts.LaunchTemplateName, true
		}
	}
	if g.LaunchTemplate != nil && g.LaunchTemplate.LaunchTemplateName != nil {
		return *g.LaunchTemplate.LaunchTemplateName, true
	}
	return "", false
}
