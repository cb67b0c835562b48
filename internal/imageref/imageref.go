// Package imageref parses Docker image reference strings into their
// constituent parts and groups references by the registry area they
// belong to.
package imageref

import "strings"

// dockerHubHost is the canonical form every Docker Hub alias normalises to.
const dockerHubHost = "docker.io"

var dockerHubAliases = map[string]bool{
	"docker.io":               true,
	"index.docker.io":         true,
	"registry-1.docker.io":    true,
	"registry.hub.docker.com": true,
}

// Reference is an image string split into its addressable parts.
type Reference struct {
	Host       string
	Namespace  string
	Repository string
	Tag        string
	Digest     string
}

// Parse splits an image reference of the form
// [host[:port]/](namespace/)*repository[:tag][@digest].
func Parse(ref string) Reference {
	var r Reference

	// 1. Strip everything from '@' onward into digest.
	if i := strings.Index(ref, "@"); i >= 0 {
		r.Digest = ref[i+1:]
		ref = ref[:i]
	}

	// 2. Find the last ':' strictly after the last '/'; split off tag.
	lastSlash := strings.LastIndex(ref, "/")
	lastColon := strings.LastIndex(ref, ":")
	if lastColon > lastSlash && lastColon != len(ref)-1 {
		r.Tag = ref[lastColon+1:]
		ref = ref[:lastColon]
	}

	// 3. Split remainder on '/'.
	segments := strings.Split(ref, "/")
	switch len(segments) {
	case 1:
		r.Host = dockerHubHost
		r.Namespace = "library"
		r.Repository = segments[0]
	case 2:
		if looksLikeHost(segments[0]) {
			r.Host = normaliseHost(segments[0])
			r.Namespace = "library"
			r.Repository = segments[1]
		} else {
			r.Host = dockerHubHost
			r.Namespace = segments[0]
			r.Repository = segments[1]
		}
	default:
		if looksLikeHost(segments[0]) {
			r.Host = normaliseHost(segments[0])
			r.Namespace = strings.Join(segments[1:len(segments)-1], "/")
		} else {
			r.Host = dockerHubHost
			r.Namespace = strings.Join(segments[:len(segments)-1], "/")
		}
		r.Repository = segments[len(segments)-1]
	}

	return r
}

func looksLikeHost(segment string) bool {
	return strings.ContainsAny(segment, ".:")
}

func normaliseHost(host string) string {
	if dockerHubAliases[host] {
		return dockerHubHost
	}
	return host
}

// RegistryArea is a group of references sharing the same (host, namespace)
// pair, with a suggested glob for matching future references in the area.
type RegistryArea struct {
	Host           string
	Namespace      string
	Glob           string
	IsLikelyPublic bool
}

// Area returns the registry area a reference belongs to.
func Area(r Reference) RegistryArea {
	area := RegistryArea{Host: r.Host, Namespace: r.Namespace}
	if r.Host == dockerHubHost {
		area.Glob = r.Namespace + "/*"
		area.IsLikelyPublic = r.Namespace == "library"
	} else {
		area.Glob = r.Host + "/" + r.Namespace + "/*"
	}
	return area
}

// GroupByArea buckets references by their registry area, preserving the
// first-seen order of areas.
func GroupByArea(refs []Reference) []struct {
	Area RegistryArea
	Refs []Reference
} {
	var order []string
	byKey := make(map[string][]Reference)
	areas := make(map[string]RegistryArea)

	for _, r := range refs {
		area := Area(r)
		key := area.Host + "\x00" + area.Namespace
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
			areas[key] = area
		}
		byKey[key] = append(byKey[key], r)
	}

	out := make([]struct {
		Area RegistryArea
		Refs []Reference
	}, 0, len(order))
	for _, key := range order {
		out = append(out, struct {
			Area RegistryArea
			Refs []Reference
		}{Area: areas[key], Refs: byKey[key]})
	}
	return out
}

// String renders the reference back to its canonical image-string form.
func (r Reference) String() string {
	var b strings.Builder
	if r.Host != "" && r.Host != dockerHubHost {
		b.WriteString(r.Host)
		b.WriteByte('/')
	}
	if r.Namespace != "" && r.Namespace != "library" {
		b.WriteString(r.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(r.Repository)
	if r.Tag != "" {
		b.WriteByte(':')
		b.WriteString(r.Tag)
	}
	if r.Digest != "" {
		b.WriteByte('@')
		b.WriteString(r.Digest)
	}
	return b.String()
}
