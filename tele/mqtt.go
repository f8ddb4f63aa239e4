package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/thermorelay/helpers"
	"github.com/temoto/thermorelay/log2"
	tele_config "github.com/temoto/thermorelay/tele/config"
)

const (
	defaultClientId       = "thermorelay"
	defaultNetworkTimeout = 30 * time.Second
	defaultRetryMin       = 1 * time.Second
	defaultRetryMax       = 1 * time.Minute
)

type Tele struct {
	log            *log2.Log
	alive          *alive.Alive
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	networkTimeout time.Duration
	retry          helpers.Backoff

	topicPrefix  string
	topicState   string
	topicRelayed string
	topicError   string
}

var _ Teler = &Tele{} // compile-time interface test

func New() *Tele { return NewWithClient(mqtt.NewClient) }

// NewWithClient allows to replace MQTT client in tests.
func NewWithClient(f func(*mqtt.ClientOptions) mqtt.Client) *Tele {
	return &Tele{
		newClient: f,
		retry:     helpers.Backoff{Min: defaultRetryMin, Max: defaultRetryMax},
	}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	if !teleConfig.Enabled {
		log.Infof("tele disabled")
		return nil
	}
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}
	var level log2.Level = log2.LInfo
	if teleConfig.LogDebug {
		level = log2.LDebug
	}
	// clone drops error func, tele errors must not loop back into tele
	self.log = log.Clone(level)
	self.log.SetPrefix("tele: ")
	mqttLog := self.log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	self.topicPrefix = teleConfig.ClientId
	if self.topicPrefix == "" {
		self.topicPrefix = defaultClientId
	}
	self.topicState = fmt.Sprintf("%s/w/1s", self.topicPrefix)
	self.topicRelayed = fmt.Sprintf("%s/w/1t", self.topicPrefix)
	self.topicError = fmt.Sprintf("%s/w/1e", self.topicPrefix)

	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, defaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	keepalive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, self.networkTimeout/2)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicState, []byte{byte(StateInvalid)}, 1, true).
		SetCleanSession(false).
		SetClientID(self.topicPrefix).
		SetConnectTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout).
		SetKeepAlive(keepalive).
		SetPingTimeout(self.networkTimeout).
		SetOrderMatters(false).
		SetDefaultPublishHandler(self.unexpectedMessage).
		SetOnConnectHandler(func(mqtt.Client) { self.log.Infof("mqtt connect") }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { self.log.Infof("mqtt disconnect err=%v", err) })
	if teleConfig.MqttUsername != "" {
		self.mopt.SetUsername(teleConfig.MqttUsername).SetPassword(teleConfig.MqttPassword)
	}
	if teleConfig.StorePath != "" {
		self.mopt.SetStore(mqtt.NewFileStore(teleConfig.StorePath))
	}
	self.m = self.newClient(self.mopt)
	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.online(ctx)
	return nil
}

func (self *Tele) Close() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	self.alive.Wait()
	self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
}

func (self *Tele) State(s State) {
	self.log.Debugf("state=%s", s)
	self.publish(self.topicState, true, []byte{byte(s)}, "publish state")
}

func (self *Tele) Error(e error) {
	if e == nil {
		return
	}
	self.publish(self.topicError, false, []byte(e.Error()), "publish error")
}

func (self *Tele) Relayed(payload []byte) {
	self.publish(self.topicRelayed, false, payload, "publish relayed")
}

// publish does not wait for broker ack.
func (self *Tele) publish(topic string, retain bool, payload []byte, tag string) {
	if self.m == nil || !self.alive.Add(1) {
		return
	}
	t := self.m.Publish(topic, 1, retain, payload)
	go func() {
		defer self.alive.Done()
		_ = self.tokenWait(t, tag)
	}()
}

func (self *Tele) online(ctx context.Context) {
	defer self.alive.Done()
	for self.alive.IsRunning() {
		self.log.Debugf("connect broker=%v", self.mopt.Servers)
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			self.retry.Reset()
			return
		}
		delay := self.retry.Failure()
		self.log.Debugf("connect retry delay=%v", delay)
		if helpers.AliveSleep(ctx, self.alive, delay) != nil {
			return
		}
	}
}

func (self *Tele) unexpectedMessage(_ mqtt.Client, msg mqtt.Message) {
	self.log.Errorf("unexpected mqtt message topic=%s", msg.Topic())
}

func (self *Tele) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.NewTimeout(nil, tag)
		self.log.Errorf("MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("MQTT %s", err.Error())
		return err
	}
	return nil
}
