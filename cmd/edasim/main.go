package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/eda.go/pkg/config"
	"github.com/robotalks/eda.go/pkg/device"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/pipeline"
)

func init() {
	config.SetupFlags(flag.CommandLine)
}

func main() {
	flag.Parse()

	conf, err := config.Load(flag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}
	dev, err := device.New(conf)
	if err != nil {
		log.Fatalf("init device: %v", err)
	}
	err = fx.NewRunner().HandleSignals().Go(dev).Wait()
	if pipeline.IsOverrun(err) {
		log.Fatalf("acquisition overrun: %v", err)
	}
	if err != nil {
		log.Fatalln(err)
	}
}
