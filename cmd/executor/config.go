package main

import (
	"github.com/nestor-run/nestor/pkg/executor"
	"github.com/nestor-run/nestor/pkg/utils"
	"github.com/spf13/viper"
)

func LoadConfig() (*executor.ExecutorConfig, error) {
	config := &executor.ExecutorConfig{}

	err := utils.UnmarshalConfig(*viper.GetViper(), config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
