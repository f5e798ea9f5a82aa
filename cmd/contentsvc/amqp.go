package main

import (
	"os"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimbusline/platform-core/pkg/utils"
)

func dialAMQP() (*amqp.Connection, error) {
	url := utils.EnvFallback(os.Getenv("CONTENTSVC_AMQP_URL"), os.Getenv("AMQP_URL"))
	return amqp.Dial(url)
}
