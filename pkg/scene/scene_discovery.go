package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SceneInfo represents a discovered scene with its metadata
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
	Group       string `json:"group"`       // Grouping category
	Type        string `json:"type"`        // "builtin" or "file"
	FilePath    string `json:"filePath"`    // Path to the scene file (file type only)
}

// SceneGroup represents a group of related scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

// ScenesResponse represents the complete response for /api/scenes
type ScenesResponse struct {
	Groups []SceneGroup `json:"groups"`
}

// SceneFile is the on-disk form of a scene. Omitted parameters keep their
// defaults.
type SceneFile struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Group       string          `json:"group"`
	Volume      *VolumeParams   `json:"volume"`
	Renderer    *RendererParams `json:"renderer"`
}

const fileGroup = "Scene Files"

// LoadSceneFile reads volume and renderer parameters from a JSON scene file
func LoadSceneFile(path string) (VolumeParams, RendererParams, error) {
	vp, rp := DefaultVolumeParams(), DefaultRendererParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return vp, rp, fmt.Errorf("failed to read scene file: %w", err)
	}

	file := SceneFile{Volume: &vp, Renderer: &rp}
	if err := json.Unmarshal(data, &file); err != nil {
		return vp, rp, fmt.Errorf("failed to parse scene file %s: %w", path, err)
	}
	return vp, rp, nil
}

// SaveSceneFile writes parameters as a JSON scene file
func SaveSceneFile(path string, info SceneInfo, vp VolumeParams, rp RendererParams) error {
	file := SceneFile{
		Name:        info.DisplayName,
		Description: info.Description,
		Group:       info.Group,
		Volume:      &vp,
		Renderer:    &rp,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ParseSceneMetadata extracts the descriptive fields of a scene file, falling
// back to values derived from the file name
func ParseSceneMetadata(filePath string) (SceneInfo, error) {
	filename := filepath.Base(filePath)
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	sceneInfo := SceneInfo{
		ID:          fmt.Sprintf("file:%s", nameWithoutExt),
		DisplayName: titleCase(nameWithoutExt),
		Group:       fileGroup,
		Type:        "file",
		FilePath:    filePath,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		// If we can't read the file, return with fallback values
		return sceneInfo, nil
	}

	var header SceneFile
	if err := json.Unmarshal(data, &header); err != nil {
		return sceneInfo, fmt.Errorf("failed to parse scene file %s: %w", filePath, err)
	}
	if name := strings.TrimSpace(header.Name); name != "" {
		sceneInfo.DisplayName = name
	}
	sceneInfo.Description = strings.TrimSpace(header.Description)
	if group := strings.TrimSpace(header.Group); group != "" {
		sceneInfo.Group = group
	}
	return sceneInfo, nil
}

// ListSceneFiles scans dir for *.json scene files. A missing directory
// yields an empty list.
func ListSceneFiles(dir string) ([]SceneInfo, error) {
	if _, err := os.Stat(dir); err != nil {
		return []SceneInfo{}, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scenes directory: %w", err)
	}

	scenes := []SceneInfo{}
	for _, filePath := range files {
		sceneInfo, err := ParseSceneMetadata(filePath)
		if err != nil {
			// skip the file but keep listing the others
			continue
		}
		scenes = append(scenes, sceneInfo)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})
	return scenes, nil
}

// ListAllScenes returns built-in presets followed by the scene files in dir,
// grouped by category. Preset groups come first in declaration order, file
// groups follow alphabetically.
func ListAllScenes(dir string) (ScenesResponse, error) {
	var response ScenesResponse

	files, err := ListSceneFiles(dir)
	if err != nil {
		return response, fmt.Errorf("failed to list scene files: %w", err)
	}

	groupMap := make(map[string][]SceneInfo)
	var builtinGroups []string
	for _, info := range ListPresets() {
		if _, seen := groupMap[info.Group]; !seen {
			builtinGroups = append(builtinGroups, info.Group)
		}
		groupMap[info.Group] = append(groupMap[info.Group], info)
	}

	var fileGroups []string
	for _, info := range files {
		if _, seen := groupMap[info.Group]; !seen {
			fileGroups = append(fileGroups, info.Group)
		}
		groupMap[info.Group] = append(groupMap[info.Group], info)
	}
	sort.Strings(fileGroups)

	for _, name := range append(builtinGroups, fileGroups...) {
		response.Groups = append(response.Groups, SceneGroup{Name: name, Scenes: groupMap[name]})
	}
	return response, nil
}

// Resolve returns the parameters for a scene ID from ListAllScenes, looking
// up "file:" IDs in dir
func Resolve(dir, id string) (VolumeParams, RendererParams, error) {
	name, ok := strings.CutPrefix(id, "file:")
	if !ok {
		return Preset(id)
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return VolumeParams{}, RendererParams{}, fmt.Errorf("invalid scene file name %q", name)
	}
	return LoadSceneFile(filepath.Join(dir, name+".json"))
}

// titleCase converts a filename-style string to title case
// e.g., "rotating-sphere" -> "Rotating Sphere"
func titleCase(s string) string {
	// Replace hyphens and underscores with spaces
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	// Title case each word
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}

	return strings.Join(words, " ")
}
