package autos

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
)

type fileWaypoint struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
	Speed  float64 `yaml:"speed"`
	Marker string  `yaml:"marker"`
}

type fileStart struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

type pathFile struct {
	Name      string         `yaml:"name"`
	Reversed  bool           `yaml:"reversed"`
	Start     *fileStart     `yaml:"start"`
	Waypoints []fileWaypoint `yaml:"waypoints"`
}

// ReadPathFile loads a path from a YAML or JSON file. The file either holds a bare list of
// waypoints or an object with name, reversed, start and waypoints keys. Without a start the
// robot is assumed to sit on the first waypoint facing along the first segment (backwards when
// reversed). The name defaults to the file name.
func ReadPathFile(path string) (Path, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Path{}, errors.Wrap(err, "reading path file")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p, err := DecodePath(bytes.NewReader(data), name)
	if err != nil {
		return Path{}, errors.Wrapf(err, "path file %q", path)
	}
	return p, nil
}

// DecodePath reads a path document from r, naming it defaultName unless the document names
// itself.
func DecodePath(r io.Reader, defaultName string) (Path, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		return Path{}, errors.Wrap(err, "decoding path")
	}
	var pf pathFile
	doc := &node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&pf.Waypoints); err != nil {
			return Path{}, errors.Wrap(err, "decoding waypoints")
		}
	case yaml.MappingNode:
		if err := doc.Decode(&pf); err != nil {
			return Path{}, errors.Wrap(err, "decoding path")
		}
	default:
		return Path{}, errors.New("path must be a list of waypoints or a mapping")
	}
	if len(pf.Waypoints) < 2 {
		return Path{}, errors.Errorf("need at least 2 waypoints, got %d", len(pf.Waypoints))
	}

	p := Path{Name: pf.Name, Reversed: pf.Reversed}
	if p.Name == "" {
		p.Name = defaultName
	}
	for _, wp := range pf.Waypoints {
		p.Waypoints = append(p.Waypoints, trajectory.NewWaypoint(wp.X, wp.Y, wp.Radius, wp.Speed, wp.Marker))
	}
	if pf.Start != nil {
		p.StartPose = spatialmath.NewPose2d(pf.Start.X, pf.Start.Y, spatialmath.RotationFromDegrees(pf.Start.Heading))
	} else {
		first, second := p.Waypoints[0].Position, p.Waypoints[1].Position
		heading := spatialmath.RotationOf(second.Sub(first))
		if p.Reversed {
			heading = heading.Flip()
		}
		p.StartPose = spatialmath.Pose2d{Translation: first, Rotation: heading}
	}
	return p, nil
}
