package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rendergraph/engine/assets/loaders"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNoLoader      = errors.New("no loader registered for asset type")
	ErrUnknownShader = errors.New("unknown shader")
)

type AssetInfo struct {
	GUID       uuid.UUID
	Path       string
	Type       resources.ResourceType
	LastLoaded time.Time
}

type Options struct {
	Dir string
	// Watch enables hot reload of loaded environment maps.
	Watch      bool
	Projection resources.ProjectOptions
	// Jobs runs environment projections; nil runs them on the caller.
	Jobs *systems.JobSystem
	// Events receives EventCodeEnvironmentChanged after a hot reload.
	Events *core.EventBus
}

type cubeBinding struct {
	material *resources.Material
	property string
}

type AssetManager struct {
	opts    Options
	guids   *GUIDRegistry
	assets  map[string]AssetInfo
	loaders map[resources.ResourceType]Loader

	shaders      map[string]*resources.Shader
	environments map[string]*resources.TextureCube
	bindings     map[string][]cubeBinding
	reloading    map[string]bool
	rerun        map[string]bool

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
}

func NewAssetManager(opts Options) (*AssetManager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: asset directory is required", core.ErrInvalidConfig)
	}
	am := &AssetManager{
		opts:         opts,
		assets:       make(map[string]AssetInfo),
		loaders:      make(map[resources.ResourceType]Loader),
		shaders:      make(map[string]*resources.Shader),
		environments: make(map[string]*resources.TextureCube),
		bindings:     make(map[string][]cubeBinding),
		reloading:    make(map[string]bool),
		rerun:        make(map[string]bool),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	if opts.Watch {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		am.fsnotify = fsWatch
	}
	return am, nil
}

// Initialize indexes the asset directory and starts the watcher if enabled.
func (am *AssetManager) Initialize() error {
	guids, err := LoadGUIDRegistry(filepath.Join(am.opts.Dir, GUIDFileName))
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	am.guids = guids

	// Register loaders
	am.registerLoader(resources.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(resources.ResourceTypeEnvironment, &loaders.EnvironmentLoader{Defaults: am.opts.Projection})
	am.registerLoader(resources.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(resources.ResourceTypeShader, &loaders.ShaderLoader{})

	if err := am.watchRecursive(am.opts.Dir); err != nil {
		return err
	}
	if err := am.guids.Save(); err != nil {
		core.LogWarn("failed to persist asset guids: %s", err.Error())
	}
	if am.fsnotify != nil {
		am.started = true
		go am.start()
	}
	core.LogInfo("indexed %d assets under %s", len(am.assets), am.opts.Dir)
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) fullPath(path string) string {
	return filepath.Join(am.opts.Dir, filepath.FromSlash(path))
}

// relPath turns a file system path into the slash separated asset path.
func (am *AssetManager) relPath(name string) string {
	rel, err := filepath.Rel(am.opts.Dir, name)
	if err != nil {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}

func (am *AssetManager) AssetPathToGUID(path string) (uuid.UUID, bool) {
	return am.guids.AssetPathToGUID(path)
}

func (am *AssetManager) GUIDToAssetPath(id uuid.UUID) (string, bool) {
	return am.guids.GUIDToAssetPath(id)
}

func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

// Assets lists indexed assets sorted by path.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	out := make([]AssetInfo, 0, len(am.assets))
	for _, info := range am.assets {
		out = append(out, info)
	}
	am.mutex.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Load an asset using the loader of its indexed type.
func (am *AssetManager) LoadAsset(path string, params interface{}) (*resources.Resource, error) {
	am.mutex.RLock()
	asset, exists := am.assets[path]
	am.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	return am.load(asset, asset.Type, params)
}

func (am *AssetManager) load(asset AssetInfo, as resources.ResourceType, params interface{}) (*resources.Resource, error) {
	loader, loaderExists := am.loaders[as]
	if !loaderExists {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, as)
	}
	res, err := loader.Load(am.fullPath(asset.Path), params)
	if err != nil {
		return nil, err
	}
	res.GUID = asset.GUID

	am.mutex.Lock()
	asset.LastLoaded = time.Now()
	am.assets[asset.Path] = asset // Update the loaded time
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(res *resources.Resource) error {
	loader, ok := am.loaders[res.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLoader, res.Type)
	}
	return loader.Unload(res)
}

// RegisterShader makes a shader resolvable by name from material files.
func (am *AssetManager) RegisterShader(shader *resources.Shader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.shaders[shader.Name] = shader
}

func (am *AssetManager) Shader(name string) (*resources.Shader, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	s, ok := am.shaders[name]
	return s, ok
}

// LoadShader loads a shader description and registers it.
func (am *AssetManager) LoadShader(path string) (*resources.Shader, error) {
	res, err := am.LoadAsset(path, nil)
	if err != nil {
		return nil, err
	}
	shader, ok := res.Data.(*resources.Shader)
	if !ok {
		return nil, fmt.Errorf("asset %s is a %s, not a shader", path, res.Type)
	}
	shader.GUID = res.GUID
	am.RegisterShader(shader)
	return shader, nil
}

// LoadEnvironment projects an equirectangular image onto a cube map. Results
// are cached per path and tracked for hot reload.
func (am *AssetManager) LoadEnvironment(path string) (*resources.TextureCube, error) {
	am.mutex.RLock()
	cube, cached := am.environments[path]
	asset, exists := am.assets[path]
	am.mutex.RUnlock()
	if cached {
		return cube, nil
	}
	if !exists || asset.Type != resources.ResourceTypeImage {
		return nil, fmt.Errorf("%w: environment %s", ErrAssetNotFound, path)
	}
	cube, err := am.loadEnvironment(asset)
	if err != nil {
		return nil, err
	}
	am.mutex.Lock()
	am.environments[path] = cube
	am.mutex.Unlock()
	return cube, nil
}

func (am *AssetManager) loadEnvironment(asset AssetInfo) (*resources.TextureCube, error) {
	res, err := am.load(asset, resources.ResourceTypeEnvironment, nil)
	if err != nil {
		return nil, err
	}
	cube := res.Data.(*resources.TextureCube)
	cube.GUID = res.GUID
	return cube, nil
}

// LoadEnvironmentAsync runs LoadEnvironment on the job system and reports
// through done from a worker goroutine.
func (am *AssetManager) LoadEnvironmentAsync(path string, done func(*resources.TextureCube, error)) error {
	if am.opts.Jobs == nil {
		cube, err := am.LoadEnvironment(path)
		done(cube, err)
		return nil
	}
	return am.opts.Jobs.Submit(systems.JobTask{
		Name: "load environment " + path,
		Type: systems.JobTypeResourceLoad,
		Run: func(context.Context) (interface{}, error) {
			return am.LoadEnvironment(path)
		},
		OnComplete: func(r interface{}) { done(r.(*resources.TextureCube), nil) },
		OnFailure:  func(err error) { done(nil, err) },
	})
}

/**
 * @brief Loads a material file. The shader must already be registered; cube
 * properties are loaded as environments and rebound on hot reload.
 */
func (am *AssetManager) LoadMaterial(path string) (*resources.Material, error) {
	res, err := am.LoadAsset(path, nil)
	if err != nil {
		return nil, err
	}
	mCfg, ok := res.Data.(*loaders.MaterialConfig)
	if !ok {
		return nil, fmt.Errorf("asset %s is a %s, not a material", path, res.Type)
	}
	shader, ok := am.Shader(mCfg.Shader)
	if !ok {
		err := fmt.Errorf("%w: material %s uses %s", ErrUnknownShader, mCfg.Name, mCfg.Shader)
		core.LogError("%s", err)
		return nil, err
	}

	material := &resources.Material{
		GUID:       res.GUID,
		Name:       mCfg.Name,
		Shader:     shader,
		Properties: make(map[string]interface{}),
	}
	for name, c := range mCfg.Colors {
		material.Properties[name] = c
	}
	for name, f := range mCfg.Floats {
		material.Properties[name] = f
	}
	for name, envPath := range mCfg.Cubes {
		cube, err := am.LoadEnvironment(envPath)
		if err != nil {
			return nil, fmt.Errorf("material %s property %s: %w", mCfg.Name, name, err)
		}
		am.BindEnvironment(envPath, material, name)
		material.Properties[name] = cube
	}
	return material, nil
}

// BindEnvironment makes RebindEnvironment update property of material when
// the environment at path is reloaded.
func (am *AssetManager) BindEnvironment(path string, material *resources.Material, property string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.bindings[path] = append(am.bindings[path], cubeBinding{material: material, property: property})
}

// RebindEnvironment points every material loaded with path at cube. Call it
// from the thread that builds frames, in response to EventCodeEnvironmentChanged.
func (am *AssetManager) RebindEnvironment(path string, cube *resources.TextureCube) int {
	am.mutex.RLock()
	bindings := am.bindings[path]
	am.mutex.RUnlock()
	for _, b := range bindings {
		b.material.Properties[b.property] = cube
	}
	return len(bindings)
}

// Shutdown stops the watcher and persists the GUID registry.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.started {
		close(am.done)
		<-am.stopped
	} else if am.fsnotify != nil {
		am.fsnotify.Close()
	}
	if am.guids == nil {
		return nil
	}
	return am.guids.Save()
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", e)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s != nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err.Error())
			}
		}
		return
	}
	path := am.relPath(e.Name)
	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		am.handleFileEvent(path)
		am.scheduleReload(path)
	}
	//Can't stat a deleted directory, so just pretend that it's always a directory and
	//try to remove from the watch list...  we really have no clue if it's a directory or not...
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(path)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// watchRecursive indexes every file under path and, when watching, adds each
// directory to the watch list.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(am.relPath(walkPath))
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == resources.ResourceTypeNone {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if _, ok := am.assets[path]; ok {
		return
	}
	am.assets[path] = AssetInfo{
		GUID: am.guids.Acquire(path),
		Path: path,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if _, ok := am.assets[path]; !ok {
		return
	}
	delete(am.assets, path)
	delete(am.environments, path)
	am.guids.Forget(path)
}

// scheduleReload re-projects a loaded environment. Writes arriving while a
// reload runs trigger one more reload once it finishes.
func (am *AssetManager) scheduleReload(path string) {
	am.mutex.Lock()
	_, loaded := am.environments[path]
	if !loaded {
		am.mutex.Unlock()
		return
	}
	if am.reloading[path] {
		am.rerun[path] = true
		am.mutex.Unlock()
		return
	}
	am.reloading[path] = true
	asset := am.assets[path]
	am.mutex.Unlock()

	run := func() {
		cube, err := am.loadEnvironment(asset)
		am.finishReload(path, cube, err)
	}
	if am.opts.Jobs == nil {
		run()
		return
	}
	err := am.opts.Jobs.Submit(systems.JobTask{
		Name: "reload environment " + path,
		Type: systems.JobTypeResourceLoad,
		Run: func(context.Context) (interface{}, error) {
			run()
			return nil, nil
		},
	})
	if err != nil {
		core.LogWarn("failed to schedule reload of %s: %s", path, err.Error())
		am.mutex.Lock()
		delete(am.reloading, path)
		am.mutex.Unlock()
	}
}

func (am *AssetManager) finishReload(path string, cube *resources.TextureCube, err error) {
	am.mutex.Lock()
	delete(am.reloading, path)
	again := am.rerun[path]
	delete(am.rerun, path)
	if err == nil {
		am.environments[path] = cube
	}
	am.mutex.Unlock()

	if err != nil {
		core.LogWarn("failed to reload environment %s: %s", path, err.Error())
	} else {
		core.LogInfo("reloaded environment %s", path)
		if am.opts.Events != nil {
			ctx := core.EventContext{Payload: cube}
			ctx.Data.C[0] = path
			am.opts.Events.Fire(core.EventCodeEnvironmentChanged, am, ctx)
		}
	}
	if again {
		// not inline: a worker submitting to its own full queue would block
		go am.scheduleReload(path)
	}
}

func determineAssetType(path string) resources.ResourceType {
	switch {
	case strings.HasSuffix(path, loaders.MaterialExtension):
		return resources.ResourceTypeMaterial
	case strings.HasSuffix(path, loaders.ShaderExtension):
		return resources.ResourceTypeShader
	case loaders.IsImage(path):
		return resources.ResourceTypeImage
	default:
		return resources.ResourceTypeNone
	}
}
