package main

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/some45bucks/HARL/environment/envconfig"
)

func main() {
	var seed uint64 = 192382

	// Create a fleet of 4 ball-chase instances behind worker
	// goroutines
	config := envconfig.NewConfig(envconfig.BallChase, 4, true, 3, 200,
		false, seed)
	envs, err := config.Create()
	if err != nil {
		panic(err)
	}
	defer envs.Close()

	obs, _, _, err := envs.Reset()
	if err != nil {
		panic(err)
	}
	fmt.Println("batched observation shape:", obs.Shape())

	policy := distuv.Uniform{Min: -1.0, Max: 1.0, Src: rand.NewSource(seed)}

	for step := 1; step <= 500; step++ {
		actions := make([]*mat.Dense, envs.NumEnvs())
		for i := range actions {
			actions[i] = mat.NewDense(envs.NumAgents(), 2, nil)
			for agent := 0; agent < envs.NumAgents(); agent++ {
				actions[i].Set(agent, 0, policy.Rand())
				actions[i].Set(agent, 1, policy.Rand())
			}
		}

		batch, err := envs.Step(actions)
		if err != nil {
			panic(err)
		}

		if step%100 == 0 {
			rewards := batch.Reward.Data().([]float64)
			total := 0.0
			for _, r := range rewards {
				total += r
			}
			fmt.Printf("step %v  mean reward: %.4f\n", step,
				total/float64(len(rewards)))
		}
	}
}
