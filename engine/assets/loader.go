package assets

import "github.com/spaghettifunk/anima-rendergraph/engine/resources"

type Loader interface {
	Load(path string, params interface{}) (*resources.Resource, error) // `interface{}` here allows loaders to take their own parameter types
	Unload(*resources.Resource) error
}
