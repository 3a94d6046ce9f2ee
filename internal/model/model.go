package model

import (
	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/pkg/db"
	"github.com/thep200/repo-harvester/pkg/log"
)

// Model carries the dependencies shared by every table type. None of it is persisted.
type Model struct {
	Config *cfg.Config  `json:"-" gorm:"-"`
	Logger log.Logger   `json:"-" gorm:"-"`
	Db     *db.Database `json:"-" gorm:"-"`
}
