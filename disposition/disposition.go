// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package disposition implements the Disposition Cache: the
// path -> TraceDecision memoisation the tracer consults on every new
// frame. A sync.Map gives lock-free reads once a path is resolved;
// golang.org/x/sync/singleflight collapses concurrent first-lookups for
// the same path into a single evaluation, which is the "short critical
// section" spec §5 asks population to be guarded by.
package disposition

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nedbat/covcore"
	"github.com/nedbat/covcore/internal/pathmatch"
)

// Plugin is a file-tracer plugin that can claim a path the ordinary
// source/include/omit/stdlib rules would otherwise skip.
type Plugin interface {
	covcore.FileTracer
	// Name identifies the plugin for PluginError/warning messages.
	Name() string
	// Claims reports whether this plugin handles path.
	Claims(path string) bool
	// HasDynamicFilename reports whether the plugin's canonical
	// filename can vary from call to call.
	HasDynamicFilename() bool
}

// Settings is the subset of config.Config the cache's precedence rules
// need. Cache takes a plain struct rather than *config.Config to avoid
// an import cycle (config does not, and should not, depend on
// disposition).
type Settings struct {
	Sources        []string
	Include        []string
	Omit           []string
	CoverStdlib    bool
	StdlibDir      string
	ThirdPartyDirs []string
}

// Cache is the Disposition Cache.
type Cache struct {
	settings Settings
	plugins  []Plugin

	decisions sync.Map // string -> covcore.TraceDecision
	group     singleflight.Group
}

// NewCache builds a Cache from settings and the given plugins, tried in
// order for step 5 of the precedence.
func NewCache(settings Settings, plugins ...Plugin) *Cache {
	return &Cache{settings: settings, plugins: plugins}
}

// Decide resolves path's TraceDecision, consulting the memoised fast
// path first and falling back to the six-step precedence on miss.
func (c *Cache) Decide(path string) (covcore.TraceDecision, error) {
	if v, ok := c.decisions.Load(path); ok {
		return v.(covcore.TraceDecision), nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if v, ok := c.decisions.Load(path); ok {
			return v, nil
		}
		d := c.decide(path)
		c.decisions.Store(path, d)
		return d, nil
	})
	if err != nil {
		return covcore.TraceDecision{}, err
	}
	return v.(covcore.TraceDecision), nil
}

// decide evaluates the six-step precedence from spec §4.3.
func (c *Cache) decide(path string) covcore.TraceDecision {
	// Step 1: explicit source list, matched as paths (the listed path
	// itself or a file under it); module names are not resolved.
	for _, src := range c.settings.Sources {
		if pathUnderSource(path, src) {
			return covcore.TraceDecision{Kind: covcore.Trace, CanonicalPath: path}
		}
	}

	// Step 2: include (and not omit). A path matching omit but no
	// include pattern simply fails this step and falls through to the
	// remaining precedence, exactly as spec §4.3 states it.
	if len(c.settings.Include) > 0 && pathmatch.MatchAny(c.settings.Include, path) &&
		!pathmatch.MatchAny(c.settings.Omit, path) {
		return covcore.TraceDecision{Kind: covcore.Trace, CanonicalPath: path}
	}

	// Step 3: standard library.
	if !c.settings.CoverStdlib && c.settings.StdlibDir != "" && pathUnderDir(path, c.settings.StdlibDir) {
		return covcore.TraceDecision{Kind: covcore.Skip, Reason: covcore.SkipStdlib}
	}

	// Step 4: third-party install directories.
	for _, dir := range c.settings.ThirdPartyDirs {
		if pathUnderDir(path, dir) {
			return covcore.TraceDecision{Kind: covcore.Skip, Reason: covcore.SkipThirdParty}
		}
	}

	// Step 5: a plugin claims the file.
	for _, p := range c.plugins {
		if p.Claims(path) {
			return covcore.TraceDecision{
				Kind:            covcore.Trace,
				CanonicalPath:   path,
				FileTracer:      p,
				DynamicFilename: p.HasDynamicFilename(),
			}
		}
	}

	// Step 6: default skip.
	return covcore.TraceDecision{Kind: covcore.Skip, Reason: covcore.SkipNotInSource}
}

func pathUnderSource(path, source string) bool {
	if path == source {
		return true
	}
	return pathUnderDir(path, source)
}

func pathUnderDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	dir = strings.TrimRight(strings.ReplaceAll(dir, `\`, "/"), "/")
	p := strings.ReplaceAll(path, `\`, "/")
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Reset drops every memoised decision, forcing the next Decide for each
// path to re-evaluate the precedence. Used when configuration changes
// mid-session (rare; mainly exercised by tests).
func (c *Cache) Reset() {
	c.decisions.Range(func(k, _ any) bool {
		c.decisions.Delete(k)
		return true
	})
}
